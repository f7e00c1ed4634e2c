// Package bulletin 定义公告板（账本）的能力接口、组合验证操作、
// 基于键值存储的对象账本与回调账本，以及电路内的成员/非成员约束。
//
// 📋 **两类账本**：
// - 对象账本：承诺的 Merkle 累加器 + 作废符集合，拒绝重复作废符
// - 回调账本：被调用票据的有序索引 Merkle 树，支持成员与非成员证明
//
// 🔒 **并发约定**：Exclusive 把"验证再追加"包成一个临界区；
// 存储层的 SetIfAbsent 是跨进程的最后一道重放防线。
package bulletin

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
)

// ObjectSubmission 提交给对象账本的交互结果
type ObjectSubmission struct {
	Object       object.Com
	OldNul       object.Nul
	CbComList    []fr.Element
	Args         []fr.Element
	Proof        []byte
	VerifyingKey groth16.VerifyingKey
	MembPub      fr.Element
}

// PublicInputs 验证用公开输入：[Object, OldNul, Args..., CbComList..., MembPub]
func (s *ObjectSubmission) PublicInputs() []fr.Element {
	out := make([]fr.Element, 0, 3+len(s.Args)+len(s.CbComList))
	out = append(out, s.Object, s.OldNul)
	out = append(out, s.Args...)
	out = append(out, s.CbComList...)
	return append(out, s.MembPub)
}

// PublicObjectBulletin 对象账本的公开能力
type PublicObjectBulletin interface {
	// VerifyIn 提交记录是否已在账本中
	VerifyIn(ctx context.Context, sub *ObjectSubmission) (bool, error)

	// MembershipPub 当前成员根
	MembershipPub(ctx context.Context) (fr.Element, error)

	// IsKnownMembershipPub 根是否在根历史窗口内
	IsKnownMembershipPub(ctx context.Context, root fr.Element) (bool, error)

	// Witness 承诺在当前根下的成员证明
	Witness(ctx context.Context, com object.Com) (*object.MerkleWitness, error)
}

// ObjectBulletin 服务方持有的对象账本
type ObjectBulletin interface {
	PublicObjectBulletin

	// HasNeverReceivedNul 作废符是否从未被接受
	HasNeverReceivedNul(ctx context.Context, nul object.Nul) (bool, error)

	// AppendValue 追加提交；作废符已存在时返回 ErrReplay
	AppendValue(ctx context.Context, sub *ObjectSubmission) error

	// Exclusive 在账本互斥区内执行 fn
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// JoinableBulletin 支持新对象加入的对象账本
type JoinableBulletin interface {
	ObjectBulletin

	// JoinBul 追加一个新承诺；pubData 交给加入授权器检查
	JoinBul(ctx context.Context, com object.Com, pubData []byte) error
}

// PublicCallbackBulletin 回调账本的公开能力
type PublicCallbackBulletin interface {
	// VerifyIn (tik, ct) 是否已记录
	VerifyIn(ctx context.Context, tik tikcrypto.TicketKey, ct fr.Element) (bool, error)

	// Lookup 查询票据调用记录；未调用时 called 为 false
	Lookup(ctx context.Context, tik tikcrypto.TicketKey) (ct fr.Element, t object.Time, called bool, err error)

	// Witness 票据的成员见证（已调用）或非成员见证（未调用）
	Witness(ctx context.Context, tik tikcrypto.TicketKey) (*CallbackWitness, error)

	// MembershipPub 当前根
	MembershipPub(ctx context.Context) (fr.Element, error)

	// IsKnownMembershipPub 根是否在根历史窗口内
	IsKnownMembershipPub(ctx context.Context, root fr.Element) (bool, error)
}

// CallbackBulletin 服务方持有的回调账本
type CallbackBulletin interface {
	PublicCallbackBulletin

	// HasNeverReceivedTik 票据是否从未被调用
	HasNeverReceivedTik(ctx context.Context, tik tikcrypto.TicketKey) (bool, error)

	// AppendValue 记录一次调用；票据已存在时返回 ErrReplay
	AppendValue(ctx context.Context, tik tikcrypto.TicketKey, ct fr.Element, sig []byte) error

	// Exclusive 在账本互斥区内执行 fn
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}
