// Package ticket 定义回调票据（CallbackEntry / CallbackCom）、
// 票据哈希链累加器及其电路镜像，以及客户端的票据簿。
package ticket

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
)

// CallbackEntry 回调票据
//
// 🎯 **字段说明**：
// - Tik: 由服务公钥重随机化得到的票据验证公钥，也是回调账本中的寻址键
// - EncKey: 回调参数的一次一密密钥
// - MethodID / Expirable / Expiration: 注册时绑定的回调方法与过期设置
type CallbackEntry struct {
	Tik        tikcrypto.TicketKey `json:"tik"`
	EncKey     tikcrypto.EncKey    `json:"enc_key"`
	MethodID   uint64              `json:"method_id"`
	Expirable  bool                `json:"expirable"`
	Expiration object.Time         `json:"expiration"`
}

// Digest 票据摘要，参与哈希链与承诺
func (e CallbackEntry) Digest() fr.Element {
	return object.Hash(
		e.Tik.X, e.Tik.Y, e.EncKey,
		object.FromUint64(e.MethodID),
		object.FromBool(e.Expirable),
		e.Expiration.Element(),
	)
}

// Key 回调账本中的键：H(tik.X, tik.Y)
func (e CallbackEntry) Key() fr.Element {
	return KeyOf(e.Tik)
}

// KeyOf 票据公钥对应的账本键
func KeyOf(tik tikcrypto.TicketKey) fr.Element {
	return object.Hash(tik.X, tik.Y)
}

// ExpiredAt 票据在给定时间是否已过期
func (e CallbackEntry) ExpiredAt(t object.Time) bool {
	return e.Expirable && t > e.Expiration
}

// Assign 转换为电路见证
func (e CallbackEntry) Assign() CallbackEntryVar {
	return CallbackEntryVar{
		TikX:       object.Big(e.Tik.X),
		TikY:       object.Big(e.Tik.Y),
		EncKey:     object.Big(e.EncKey),
		MethodID:   e.MethodID,
		Expirable:  object.BoolVar(e.Expirable),
		Expiration: uint64(e.Expiration),
	}
}

// CallbackCom 带承诺随机数的票据
type CallbackCom struct {
	Entry   CallbackEntry `json:"entry"`
	ComRand fr.Element    `json:"com_rand"`
}

// Commit 票据承诺：H(digest, rand)
func (c CallbackCom) Commit() fr.Element {
	return object.Hash(c.Entry.Digest(), c.ComRand)
}

// AddToChain 哈希链累加：H(acc, digest)
//
// 累加与顺序相关，扫描时必须按注册顺序重放。
func AddToChain(acc fr.Element, e CallbackEntry) fr.Element {
	return object.Hash(acc, e.Digest())
}

// Chain 从初始值依次累加一组票据
func Chain(acc fr.Element, entries ...CallbackEntry) fr.Element {
	for i := range entries {
		acc = AddToChain(acc, entries[i])
	}
	return acc
}

// ============================================================================
//                                电路镜像
// ============================================================================

// CallbackEntryVar 票据的电路表示
type CallbackEntryVar struct {
	TikX       frontend.Variable
	TikY       frontend.Variable
	EncKey     frontend.Variable
	MethodID   frontend.Variable
	Expirable  frontend.Variable
	Expiration frontend.Variable
}

// EmptyEntryVar 全零票据见证，用于未激活的批次槽位
func EmptyEntryVar() CallbackEntryVar {
	return CallbackEntryVar{TikX: 0, TikY: 0, EncKey: 0, MethodID: 0, Expirable: 0, Expiration: 0}
}

// DigestVar 电路内票据摘要
func DigestVar(h *object.Hasher, e CallbackEntryVar) frontend.Variable {
	return h.Hash(e.TikX, e.TikY, e.EncKey, e.MethodID, e.Expirable, e.Expiration)
}

// KeyVar 电路内账本键
func KeyVar(h *object.Hasher, e CallbackEntryVar) frontend.Variable {
	return h.Hash(e.TikX, e.TikY)
}

// CommitVar 电路内票据承诺
func CommitVar(h *object.Hasher, e CallbackEntryVar, rand frontend.Variable) frontend.Variable {
	return h.Hash(DigestVar(h, e), rand)
}

// AddToChainVar 电路内哈希链累加
func AddToChainVar(h *object.Hasher, acc frontend.Variable, e CallbackEntryVar) frontend.Variable {
	return h.Hash(acc, DigestVar(h, e))
}
