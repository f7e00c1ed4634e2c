package service

import "errors"

// ============================================================================
//                               服务方错误定义
// ============================================================================

var (
	// ErrMissingDependency 构造服务时缺少必需依赖
	ErrMissingDependency = errors.New("service: missing dependency")

	// ErrForeignTicket 票据公钥不是由服务私钥按给定随机数重随机化得到
	ErrForeignTicket = errors.New("service: ticket not derived from service key")

	// ErrTicketMismatch 票据与提交中的票据承诺不一致
	ErrTicketMismatch = errors.New("service: ticket does not match commitment")

	// ErrTicketCalled 票据已经被调用过
	ErrTicketCalled = errors.New("service: ticket already called")

	// ErrUnknownRoot 回调账本或对象账本根不在历史窗口内
	ErrUnknownRoot = errors.New("service: unknown bulletin root")

	// ErrStaleRoot 非成员见证不是在回调账本当前根下取得的
	ErrStaleRoot = errors.New("service: non-membership root is not current")

	// ErrDuplicateTicket 票据在本次或之前批准的提交中已经出现过
	ErrDuplicateTicket = errors.New("service: ticket already issued")

	// ErrFutureTime 扫描声明的时间晚于服务当前纪元
	ErrFutureTime = errors.New("service: scan time is in the future")

	// ErrUnexpectedTickets 扫描提交携带了票据承诺
	ErrUnexpectedTickets = errors.New("service: scan must not issue tickets")

	// ErrNoRecordStore 未配置交互日志存储
	ErrNoRecordStore = errors.New("service: interaction log not configured")
)
