// Package user 定义用户对象（私有数据 + 协议簿记字段）及其电路镜像。
//
// 📋 **承诺布局**：
//
//	Commit = H(data..., nulSeed, callbackHash, oldInProgress, newInProgress, isIngestOver, comRand)
//	Nullify = H(nulSeed)
//
// 原生实现与电路实现字段顺序必须一致。
package user

import (
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
)

// UserData 应用定义的私有数据
//
// ⚠️ 实现应为值类型，Serialize 返回的长度对同一类型必须固定。
type UserData interface {
	Serialize() []fr.Element
}

// cloner 数据含引用字段时可实现深拷贝
type cloner[D any] interface {
	Clone() D
}

// ZKFields 协议簿记字段
type ZKFields struct {
	NulSeed                   fr.Element `json:"nul_seed"`
	ComRand                   fr.Element `json:"com_rand"`
	CallbackHash              fr.Element `json:"callback_hash"`
	OldInProgressCallbackHash fr.Element `json:"old_in_progress_callback_hash"`
	NewInProgressCallbackHash fr.Element `json:"new_in_progress_callback_hash"`
	IsIngestOver              bool       `json:"is_ingest_over"`
}

// User 用户对象
type User[D UserData] struct {
	Data    D           `json:"data"`
	ZK      ZKFields    `json:"zk"`
	Tickets ticket.Book `json:"tickets"`
}

// New 创建用户：随机作废符种子与承诺随机数，初始为关闭状态
func New[D UserData](data D, rng io.Reader) (*User[D], error) {
	u := &User[D]{Data: data}
	if err := u.Refresh(rng); err != nil {
		return nil, err
	}
	u.ZK.IsIngestOver = true
	return u, nil
}

// DataWidth 返回数据类型序列化后的域元素个数
func DataWidth[D UserData]() int {
	var d D
	return len(d.Serialize())
}

// Refresh 重新采样作废符种子与承诺随机数
func (u *User[D]) Refresh(rng io.Reader) error {
	nul, err := object.Random(rng)
	if err != nil {
		return fmt.Errorf("生成作废符种子失败: %w", err)
	}
	rnd, err := object.Random(rng)
	if err != nil {
		return fmt.Errorf("生成承诺随机数失败: %w", err)
	}
	u.ZK.NulSeed = nul
	u.ZK.ComRand = rnd
	return nil
}

// Fields 按承诺顺序展开全部字段（不含承诺随机数）
func (u *User[D]) Fields() []fr.Element {
	out := append([]fr.Element{}, u.Data.Serialize()...)
	return append(out,
		u.ZK.NulSeed,
		u.ZK.CallbackHash,
		u.ZK.OldInProgressCallbackHash,
		u.ZK.NewInProgressCallbackHash,
		object.FromBool(u.ZK.IsIngestOver),
	)
}

// Commit 计算对象承诺
func (u *User[D]) Commit() object.Com {
	return object.Hash(append(u.Fields(), u.ZK.ComRand)...)
}

// Nullify 计算当前状态的作废符
func (u *User[D]) Nullify() object.Nul {
	return object.Hash(u.ZK.NulSeed)
}

// Clone 深拷贝，变更总在副本上进行
func (u *User[D]) Clone() *User[D] {
	out := &User[D]{
		Data:    u.Data,
		ZK:      u.ZK,
		Tickets: u.Tickets.Clone(),
	}
	if c, ok := any(u.Data).(cloner[D]); ok {
		out.Data = c.Clone()
	}
	return out
}

// RegisterTicket 把票据折叠进回调哈希
//
// 关闭状态下两个进行中哈希同步为新的回调哈希；
// 打开状态下只扩展回调哈希，扫描会在收敛前见证到这张票据。
func (u *User[D]) RegisterTicket(c ticket.CallbackCom) {
	u.ZK.CallbackHash = ticket.AddToChain(u.ZK.CallbackHash, c.Entry)
	if u.ZK.IsIngestOver {
		u.ZK.OldInProgressCallbackHash = u.ZK.CallbackHash
		u.ZK.NewInProgressCallbackHash = u.ZK.CallbackHash
	}
	u.Tickets.Register(c)
}

// Assign 转换为电路见证
func (u *User[D]) Assign() UserVar {
	data := u.Data.Serialize()
	v := UserVar{
		Data:          make([]frontend.Variable, len(data)),
		NulSeed:       object.Big(u.ZK.NulSeed),
		ComRand:       object.Big(u.ZK.ComRand),
		CallbackHash:  object.Big(u.ZK.CallbackHash),
		OldInProgress: object.Big(u.ZK.OldInProgressCallbackHash),
		NewInProgress: object.Big(u.ZK.NewInProgressCallbackHash),
		IsIngestOver:  object.BoolVar(u.ZK.IsIngestOver),
	}
	for i := range data {
		v.Data[i] = object.Big(data[i])
	}
	return v
}
