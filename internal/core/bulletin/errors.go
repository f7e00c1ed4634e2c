package bulletin

import (
	"errors"
	"fmt"
)

// ============================================================================
//                               公告板错误定义
// ============================================================================

var (
	// ErrVerify 提交未通过验证
	ErrVerify = errors.New("bulletin: verification failed")

	// ErrReplay 作废符或票据已被接受过
	ErrReplay = errors.New("bulletin: already received")

	// ErrUnknownRoot 成员根不在根历史中
	ErrUnknownRoot = errors.New("bulletin: unknown membership root")

	// ErrJoinRejected 加入请求未被授权
	ErrJoinRejected = errors.New("bulletin: join rejected")

	// ErrLedgerFull 累加器已满
	ErrLedgerFull = errors.New("bulletin: ledger full")

	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("bulletin: not found")
)

// Kind 错误类别
type Kind int

const (
	// KindVerify 验证失败（含重放），重试无意义
	KindVerify Kind = iota + 1
	// KindAppend 存储失败，可以重试
	KindAppend
)

// String 类别名称
func (k Kind) String() string {
	switch k {
	case KindVerify:
		return "verify"
	case KindAppend:
		return "append"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BulError 组合操作返回的错误
type BulError struct {
	Kind Kind
	Err  error
}

// Error 实现 error 接口
func (e *BulError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bulletin %s error", e.Kind)
	}
	return fmt.Sprintf("bulletin %s error: %v", e.Kind, e.Err)
}

// Unwrap 返回内部错误
func (e *BulError) Unwrap() error {
	return e.Err
}

// VerifyError 包装为验证错误；err 为 nil 时使用 ErrVerify
func VerifyError(err error) *BulError {
	if err == nil {
		err = ErrVerify
	}
	return &BulError{Kind: KindVerify, Err: err}
}

// AppendError 包装为存储错误
func AppendError(err error) *BulError {
	return &BulError{Kind: KindAppend, Err: err}
}

// IsVerifyError 是否为验证错误
func IsVerifyError(err error) bool {
	var be *BulError
	return errors.As(err, &be) && be.Kind == KindVerify
}

// IsAppendError 是否为存储错误
func IsAppendError(err error) bool {
	var be *BulError
	return errors.As(err, &be) && be.Kind == KindAppend
}

// classifyAppend 追加阶段的错误分类：重放与拒绝属于验证错误
func classifyAppend(err error) error {
	if err == nil {
		return nil
	}
	var be *BulError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, ErrVerify) || errors.Is(err, ErrReplay) || errors.Is(err, ErrJoinRejected) || errors.Is(err, ErrUnknownRoot) {
		return VerifyError(err)
	}
	return AppendError(err)
}
