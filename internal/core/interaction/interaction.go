// Package interaction 定义交互（受谓词约束的状态转换）与回调声明，
// 以及交互证明电路和客户端执行流程。
//
// 📋 **一次交互**：
//  1. 在用户副本上运行原生方法，刷新作废符种子与承诺随机数
//  2. 为每个声明的回调签发票据并折叠进回调哈希
//  3. 证明 InteractionCircuit，返回 ExecutedMethod 与新用户
//
// 调用方持有的旧用户不会被修改。
package interaction

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/user"
)

var (
	// ErrArgCount 参数个数与交互声明不符
	ErrArgCount = errors.New("interaction: argument count mismatch")

	// ErrMissingWitness 需要成员证明但未提供
	ErrMissingWitness = errors.New("interaction: membership witness required")

	// ErrMethodFailed 原生方法执行失败
	ErrMethodFailed = errors.New("interaction: method failed")

	// ErrUnknownCallback 回调方法ID未声明
	ErrUnknownCallback = errors.New("interaction: unknown callback method")
)

// Method 原生状态转换，入参为用户副本
type Method[D user.UserData] func(u *user.User[D], pub, priv []fr.Element) (*user.User[D], error)

// Predicate 电路内转换谓词，返回布尔变量
type Predicate func(api frontend.API, old, next user.UserVar, pub, priv []frontend.Variable) (frontend.Variable, error)

// CallbackMethod 原生回调方法：以解密后的参数更新用户
type CallbackMethod[D user.UserData] func(u *user.User[D], arg fr.Element) *user.User[D]

// CallbackPredicate 回调方法的电路实现，返回更新后的用户
//
// ⚠️ 必须无分支：扫描电路对每个槽位都会调用，再按方法ID选择结果。
type CallbackPredicate func(api frontend.API, u user.UserVar, arg frontend.Variable) (user.UserVar, error)

// Callback 回调声明
//
// Expiration 为绝对纪元；Expirable 为 false 时永不过期。
type Callback[D user.UserData] struct {
	MethodID   uint64
	Expirable  bool
	Expiration object.Time
	Method     CallbackMethod[D]
	Predicate  CallbackPredicate
}

// Interaction 交互声明
type Interaction[D user.UserData] struct {
	Name            string
	Method          Method[D]
	Predicate       Predicate
	Callbacks       []Callback[D]
	NumPubArgs      int
	NumPrivArgs     int
	CheckMembership bool
}

// Validate 检查声明是否完整
func (it *Interaction[D]) Validate() error {
	if it == nil {
		return errors.New("interaction: nil interaction")
	}
	if it.Name == "" {
		return errors.New("interaction: empty name")
	}
	if it.Method == nil || it.Predicate == nil {
		return fmt.Errorf("interaction %q: method and predicate are required", it.Name)
	}
	if it.NumPubArgs < 0 || it.NumPrivArgs < 0 {
		return fmt.Errorf("interaction %q: negative argument count", it.Name)
	}
	for i, cb := range it.Callbacks {
		if cb.Method == nil || cb.Predicate == nil {
			return fmt.Errorf("interaction %q: callback %d missing method or predicate", it.Name, i)
		}
	}
	return nil
}

// FindCallback 按方法ID查找回调
func FindCallback[D user.UserData](cbs []Callback[D], id uint64) (Callback[D], error) {
	for _, cb := range cbs {
		if cb.MethodID == id {
			return cb, nil
		}
	}
	return Callback[D]{}, fmt.Errorf("%w: id=%d", ErrUnknownCallback, id)
}

// TicketRand 票据及其重随机化标量，交给服务方保存以便日后调用
type TicketRand struct {
	Ticket ticket.CallbackCom `json:"ticket"`
	Rand   fr.Element         `json:"rand"`
}

// ExecutedMethod 交互结果
type ExecutedMethod struct {
	NewObject    object.Com   `json:"new_object"`
	OldNullifier object.Nul   `json:"old_nullifier"`
	CbComList    []fr.Element `json:"cb_com_list"`
	CbTikList    []TicketRand `json:"cb_tik_list"`
	MembPub      fr.Element   `json:"memb_pub"`
	Proof        []byte       `json:"proof"`
}

// PublicInputs 公开输入向量：[NewCom, OldNul, args..., cbComs..., membPub]
func (em *ExecutedMethod) PublicInputs(args []fr.Element) []fr.Element {
	out := make([]fr.Element, 0, 3+len(args)+len(em.CbComList))
	out = append(out, em.NewObject, em.OldNullifier)
	out = append(out, args...)
	out = append(out, em.CbComList...)
	return append(out, em.MembPub)
}
