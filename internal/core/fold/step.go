// Package fold 把宽度为 1 的扫描包装成步进电路，交给增量验证（IVC）引擎折叠，
// 用一个最终证明代替 N 个独立的扫描证明。
//
// 📋 **运行状态**（长度 3）：
//
//	z[0] = H(Commit(当前用户), nonce)
//	z[1] = H(隐藏的旧承诺, nonce)
//	z[2] = 当前时间
//
// 每一步更换 nonce，中间状态对验证者不可链接。最终由 BindingCircuit
// 把首尾状态绑定到公开的新承诺与旧作废符。
package fold

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/scan"
	"github.com/weisyn/zkcallback/internal/core/user"
)

// StateLen 折叠扫描的状态长度
const StateLen = 3

// StepCircuit IVC 步进电路
//
// Step 必须只依赖 z 与 ext，常量参数在实现内部固定。
type StepCircuit[I any] interface {
	// ID 电路缓存ID，包含全部常量参数
	ID() string
	// StateLen 状态向量长度
	StateLen() int
	// NewInput 分配空的外部输入（编译用）
	NewInput() I
	// Step 由 z_i 与外部输入计算 z_{i+1}
	Step(api frontend.API, z []frontend.Variable, ext I) ([]frontend.Variable, error)
}

// FoldInput 一步的外部输入
//
// Scan 的宽度固定为 1；Nul 与 ComRand 是本步新用户的作废符种子与承诺随机数。
type FoldInput[D user.UserData] struct {
	User        *user.User[D]
	Scan        scan.PrivScanArgs
	Nul         fr.Element
	ComRand     fr.Element
	Nonce       fr.Element
	PostNonce   fr.Element
	HidOldCom   object.Com
	MembWitness object.MerkleProof
}

// FoldInputVar 外部输入的电路表示
type FoldInputVar struct {
	User        user.UserVar
	Scan        scan.PrivScanArgsVar
	Nul         frontend.Variable
	ComRand     frontend.Variable
	Nonce       frontend.Variable
	PostNonce   frontend.Variable
	HidOldCom   frontend.Variable
	MembWitness object.MerkleProofVar
}

// Assign 转换为电路见证
func (in *FoldInput[D]) Assign() FoldInputVar {
	return FoldInputVar{
		User:        in.User.Assign(),
		Scan:        in.Scan.Assign(),
		Nul:         object.Big(in.Nul),
		ComRand:     object.Big(in.ComRand),
		Nonce:       object.Big(in.Nonce),
		PostNonce:   object.Big(in.PostNonce),
		HidOldCom:   object.Big(in.HidOldCom),
		MembWitness: in.MembWitness.Assign(),
	}
}

// FoldingScan 折叠扫描的步进电路
//
// ConstMemb 是对象账本根；CbMemb / CbNmemb 是整个折叠过程使用的回调账本根。
// 三者都编译为常量，因此电路ID随根变化。
type FoldingScan[D user.UserData] struct {
	Name      string
	Methods   []interaction.Callback[D]
	ConstMemb fr.Element
	CbMemb    fr.Element
	CbNmemb   fr.Element
	ObjDepth  int
	CbDepth   int
}

// ID 实现 StepCircuit
func (fs *FoldingScan[D]) ID() string {
	id := fmt.Sprintf("fold/%s/w%d/o%d/c%d/%x/%x/%x",
		fs.Name, user.DataWidth[D](), fs.ObjDepth, fs.CbDepth,
		fs.ConstMemb.Bytes(), fs.CbMemb.Bytes(), fs.CbNmemb.Bytes())
	for _, m := range fs.Methods {
		id += fmt.Sprintf("/m%d", m.MethodID)
	}
	return id
}

// StateLen 实现 StepCircuit
func (fs *FoldingScan[D]) StateLen() int {
	return StateLen
}

// NewInput 实现 StepCircuit
func (fs *FoldingScan[D]) NewInput() FoldInputVar {
	return FoldInputVar{
		User:        user.NewUserVar(user.DataWidth[D]()),
		Scan:        scan.NewPrivScanArgsVar(1, fs.CbDepth),
		MembWitness: object.NewMerkleProofVar(fs.ObjDepth),
	}
}

// Step 实现 StepCircuit
func (fs *FoldingScan[D]) Step(api frontend.API, z []frontend.Variable, ext FoldInputVar) ([]frontend.Variable, error) {
	if len(z) != StateLen {
		return nil, fmt.Errorf("fold: state length %d, want %d", len(z), StateLen)
	}
	h, err := object.NewHasher(api)
	if err != nil {
		return nil, err
	}
	user.AssertWellFormed(api, ext.User)

	api.AssertIsEqual(z[0], h.Hash(user.CommitVar(h, ext.User), ext.Nonce))
	api.AssertIsEqual(z[1], h.Hash(ext.HidOldCom, ext.Nonce))
	h.VerifyMerklePath(ext.HidOldCom, ext.MembWitness, object.Big(fs.ConstMemb))

	pub := scan.PubScanArgsVar{
		MembPub:  []frontend.Variable{object.Big(fs.CbMemb)},
		NmembPub: []frontend.Variable{object.Big(fs.CbNmemb)},
		CurTime:  z[2],
	}
	next, err := scan.ApplyVar(h, ext.User, pub, ext.Scan, scan.MethodTable(fs.Methods))
	if err != nil {
		return nil, err
	}
	next.NulSeed = ext.Nul
	next.ComRand = ext.ComRand

	return []frontend.Variable{
		h.Hash(user.CommitVar(h, next), ext.PostNonce),
		h.Hash(ext.HidOldCom, ext.PostNonce),
		z[2],
	}, nil
}

// NativeState 原生计算状态向量
func NativeState(com, hidOld, nonce fr.Element, curTime object.Time) []fr.Element {
	return []fr.Element{
		object.Hash(com, nonce),
		object.Hash(hidOld, nonce),
		curTime.Element(),
	}
}
