package user

import (
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
)

// UserVar 用户对象的电路镜像
//
// ⚠️ Data 长度必须在创建电路实例时确定，请使用 NewUserVar。
type UserVar struct {
	Data          []frontend.Variable
	NulSeed       frontend.Variable
	ComRand       frontend.Variable
	CallbackHash  frontend.Variable
	OldInProgress frontend.Variable
	NewInProgress frontend.Variable
	IsIngestOver  frontend.Variable
}

// NewUserVar 按数据宽度分配电路用户
func NewUserVar(width int) UserVar {
	return UserVar{Data: make([]frontend.Variable, width)}
}

// Copy 复制 Data 切片，避免共享底层数组
func (u UserVar) Copy() UserVar {
	out := u
	out.Data = append([]frontend.Variable(nil), u.Data...)
	return out
}

// fields 按承诺顺序展开（不含承诺随机数）
func (u UserVar) fields() []frontend.Variable {
	out := append([]frontend.Variable{}, u.Data...)
	return append(out, u.NulSeed, u.CallbackHash, u.OldInProgress, u.NewInProgress, u.IsIngestOver)
}

// CommitVar 电路内对象承诺
func CommitVar(h *object.Hasher, u UserVar) frontend.Variable {
	return h.Hash(append(u.fields(), u.ComRand)...)
}

// NullifyVar 电路内作废符
func NullifyVar(h *object.Hasher, u UserVar) frontend.Variable {
	return h.Hash(u.NulSeed)
}

// AssertWellFormed 约束布尔字段
func AssertWellFormed(api frontend.API, u UserVar) {
	api.AssertIsBoolean(u.IsIngestOver)
}

// SelectVar cond ? a : b，逐字段选择
func SelectVar(api frontend.API, cond frontend.Variable, a, b UserVar) UserVar {
	out := UserVar{Data: make([]frontend.Variable, len(a.Data))}
	for i := range a.Data {
		out.Data[i] = api.Select(cond, a.Data[i], b.Data[i])
	}
	out.NulSeed = api.Select(cond, a.NulSeed, b.NulSeed)
	out.ComRand = api.Select(cond, a.ComRand, b.ComRand)
	out.CallbackHash = api.Select(cond, a.CallbackHash, b.CallbackHash)
	out.OldInProgress = api.Select(cond, a.OldInProgress, b.OldInProgress)
	out.NewInProgress = api.Select(cond, a.NewInProgress, b.NewInProgress)
	out.IsIngestOver = api.Select(cond, a.IsIngestOver, b.IsIngestOver)
	return out
}

// AssertEqualVar 逐字段断言相等
func AssertEqualVar(api frontend.API, a, b UserVar) {
	for i := range a.Data {
		api.AssertIsEqual(a.Data[i], b.Data[i])
	}
	api.AssertIsEqual(a.NulSeed, b.NulSeed)
	api.AssertIsEqual(a.ComRand, b.ComRand)
	api.AssertIsEqual(a.CallbackHash, b.CallbackHash)
	api.AssertIsEqual(a.OldInProgress, b.OldInProgress)
	api.AssertIsEqual(a.NewInProgress, b.NewInProgress)
	api.AssertIsEqual(a.IsIngestOver, b.IsIngestOver)
}
