package fold

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/scan"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// MaxSteps 单次折叠的最大步数
const MaxSteps = 1024

var (
	// ErrRootChanged 折叠期间回调账本根发生变化
	ErrRootChanged = errors.New("fold: callback bulletin root changed during preparation")
	// ErrTooManySteps 超过 MaxSteps 仍未收敛
	ErrTooManySteps = errors.New("fold: scan did not converge within step limit")
)

// Prepared 折叠扫描的全部输入
//
// Zs[k] 是第 k 步之前的状态，len(Zs) = len(Inputs)+1。
type Prepared[D user.UserData] struct {
	Circuit    *FoldingScan[D]
	Zs         [][]fr.Element
	Inputs     []FoldInput[D]
	Initial    *user.User[D]
	Final      *user.User[D]
	FirstNonce fr.Element
	LastNonce  fr.Element
	CurTime    object.Time
}

// PrepareScan 以宽度 1 原生扫描直到收敛，记录每一步的外部输入与状态
//
// 整个过程使用同一个回调账本根；准备期间账本发生追加时返回 ErrRootChanged，调用方重试即可。
// 至少产生一步，即使没有待见证的票据。
func PrepareScan[D user.UserData](
	ctx context.Context,
	rng io.Reader,
	name string,
	methods []interaction.Callback[D],
	u *user.User[D],
	obul bulletin.PublicObjectBulletin,
	cbul bulletin.PublicCallbackBulletin,
	cbDepth int,
	curTime object.Time,
) (*Prepared[D], error) {
	hid := u.Commit()
	memb, err := obul.Witness(ctx, hid)
	if err != nil {
		return nil, fmt.Errorf("获取对象成员证明失败: %w", err)
	}
	cbRoot, err := cbul.MembershipPub(ctx)
	if err != nil {
		return nil, err
	}
	fs := &FoldingScan[D]{
		Name:      name,
		Methods:   methods,
		ConstMemb: memb.Root,
		CbMemb:    cbRoot,
		CbNmemb:   cbRoot,
		ObjDepth:  len(memb.Proof.Siblings),
		CbDepth:   cbDepth,
	}
	s := &scan.Scanner[D]{
		Name:     name,
		Methods:  methods,
		Width:    1,
		ObjDepth: fs.ObjDepth,
		CbDepth:  cbDepth,
	}

	nonce, err := object.Random(rng)
	if err != nil {
		return nil, err
	}
	p := &Prepared[D]{
		Circuit:    fs,
		Zs:         [][]fr.Element{NativeState(hid, hid, nonce, curTime)},
		Initial:    u,
		FirstNonce: nonce,
		CurTime:    curTime,
	}

	cur := u
	for step := 0; ; step++ {
		if step >= MaxSteps {
			return nil, ErrTooManySteps
		}
		pub, priv, err := s.Prepare(ctx, cur, cbul, curTime)
		if err != nil {
			return nil, err
		}
		if pub.MembPub[0] != cbRoot || pub.NmembPub[0] != cbRoot {
			return nil, ErrRootChanged
		}
		next, err := scan.ScanMethod(ctx, cur, pub, priv)
		if err != nil {
			return nil, err
		}
		if err := next.Refresh(rng); err != nil {
			return nil, err
		}
		post, err := object.Random(rng)
		if err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, FoldInput[D]{
			User:        cur,
			Scan:        *priv,
			Nul:         next.ZK.NulSeed,
			ComRand:     next.ZK.ComRand,
			Nonce:       nonce,
			PostNonce:   post,
			HidOldCom:   hid,
			MembWitness: memb.Proof,
		})
		p.Zs = append(p.Zs, NativeState(next.Commit(), hid, post, curTime))
		cur, nonce = next, post
		if cur.ZK.IsIngestOver {
			break
		}
	}
	p.Final = cur
	p.LastNonce = nonce
	return p, nil
}

// Fold 在引擎上依次证明全部步骤
func Fold[D user.UserData](ctx context.Context, eng Engine[FoldInputVar], p *Prepared[D]) error {
	if err := eng.Init(p.Zs[0]); err != nil {
		return err
	}
	for k := range p.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := eng.ProveStep(ctx, p.Inputs[k].Assign(), p.Zs[k+1]); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
//                                绑定证明
// ============================================================================

// BindingCircuit 把折叠的首尾状态绑定到公开的新承诺与旧作废符
//
// 📋 **公开输入顺序**：[Z0..., Zn..., NewCom, OldNul]
//
// 🔍 **约束**：
// - Z0 = (H(Commit(old), N0), H(Commit(old), N0), t)
// - Zn = (H(NewCom, Nn), H(Commit(old), Nn), t)
// - OldNul = Nullify(old)
type BindingCircuit struct {
	Z0     [StateLen]frontend.Variable `gnark:",public"`
	Zn     [StateLen]frontend.Variable `gnark:",public"`
	NewCom frontend.Variable           `gnark:",public"`
	OldNul frontend.Variable           `gnark:",public"`

	Old user.UserVar
	N0  frontend.Variable
	Nn  frontend.Variable
}

// NewBindingCircuit 按数据宽度分配
func NewBindingCircuit(dataWidth int) *BindingCircuit {
	return &BindingCircuit{Old: user.NewUserVar(dataWidth)}
}

// Define 实现 frontend.Circuit
func (c *BindingCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	user.AssertWellFormed(api, c.Old)
	hid := user.CommitVar(h, c.Old)

	first := h.Hash(hid, c.N0)
	api.AssertIsEqual(c.Z0[0], first)
	api.AssertIsEqual(c.Z0[1], first)
	api.AssertIsEqual(c.Zn[0], h.Hash(c.NewCom, c.Nn))
	api.AssertIsEqual(c.Zn[1], h.Hash(hid, c.Nn))
	api.AssertIsEqual(c.Zn[2], c.Z0[2])
	api.AssertIsEqual(c.OldNul, user.NullifyVar(h, c.Old))
	return nil
}

// BindingCircuitID 绑定电路缓存ID
func BindingCircuitID(dataWidth int) string {
	return fmt.Sprintf("fold-binding/w%d", dataWidth)
}

// BindingKeys 编译绑定电路并执行可信设置
func BindingKeys[D user.UserData](ctx context.Context, cm *zkproof.CircuitManager) (*zkproof.Keys, error) {
	w := user.DataWidth[D]()
	return cm.Setup(ctx, BindingCircuitID(w), NewBindingCircuit(w))
}

func (p *Prepared[D]) bindingAssignment() *BindingCircuit {
	c := NewBindingCircuit(user.DataWidth[D]())
	z0, zn := p.Zs[0], p.Zs[len(p.Zs)-1]
	for i := 0; i < StateLen; i++ {
		c.Z0[i] = object.Big(z0[i])
		c.Zn[i] = object.Big(zn[i])
	}
	c.NewCom = object.Big(p.Final.Commit())
	c.OldNul = object.Big(p.Initial.Nullify())
	c.Old = p.Initial.Assign()
	c.N0 = object.Big(p.FirstNonce)
	c.Nn = object.Big(p.LastNonce)
	return c
}

// FinalProof 折叠扫描的最终证明
type FinalProof struct {
	Steps    *RandomizedProof `json:"steps"`
	Binding  []byte           `json:"binding"`
	NewCom   object.Com       `json:"new_com"`
	OldNul   object.Nul       `json:"old_nul"`
	ObjRoot  fr.Element       `json:"obj_root"`
	CbRoot   fr.Element       `json:"cb_root"`
	CurTime  object.Time      `json:"cur_time"`
	NumSteps int              `json:"num_steps"`
}

// BindingInputs 绑定证明的公开输入
func (fp *FinalProof) BindingInputs() []fr.Element {
	out := make([]fr.Element, 0, 2*StateLen+2)
	out = append(out, fp.Steps.Z0...)
	out = append(out, fp.Steps.Zn...)
	return append(out, fp.NewCom, fp.OldNul)
}

// Finalize 随机化引擎输出并生成绑定证明
func Finalize[D user.UserData](
	ctx context.Context,
	prover *zkproof.Prover,
	bindingKeys *zkproof.Keys,
	eng Engine[FoldInputVar],
	p *Prepared[D],
) (*FinalProof, error) {
	rp, err := eng.Randomize()
	if err != nil {
		return nil, err
	}
	binding, err := prover.Prove(ctx, bindingKeys, p.bindingAssignment())
	if err != nil {
		return nil, fmt.Errorf("绑定证明失败: %w", err)
	}
	return &FinalProof{
		Steps:    rp,
		Binding:  binding,
		NewCom:   p.Final.Commit(),
		OldNul:   p.Initial.Nullify(),
		ObjRoot:  p.Circuit.ConstMemb,
		CbRoot:   p.Circuit.CbMemb,
		CurTime:  p.CurTime,
		NumSteps: rp.Steps(),
	}, nil
}

// VerifyFinal 验证折叠证明与绑定证明
//
// 引擎必须由与 fp 相同的对象根与回调账本根构造；调用方负责检查根是否可信。
func VerifyFinal(eng Engine[FoldInputVar], v zkproof.Verifier, bindingVK groth16.VerifyingKey, fp *FinalProof) error {
	if fp == nil || fp.Steps == nil {
		return ErrNoSteps
	}
	if len(fp.Steps.Z0) != StateLen || len(fp.Steps.Zn) != StateLen {
		return ErrStateLen
	}
	if fp.Steps.Zn[2] != fp.CurTime.Element() {
		return fmt.Errorf("fold: proof time does not match claimed time %d", fp.CurTime)
	}
	if err := eng.Verify(fp.Steps); err != nil {
		return err
	}
	if err := v.Verify(bindingVK, fp.Binding, fp.BindingInputs()); err != nil {
		return fmt.Errorf("绑定证明验证失败: %w", err)
	}
	return nil
}
