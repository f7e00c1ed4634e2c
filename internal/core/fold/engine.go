package fold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

var (
	// ErrNotInitialized 引擎尚未 Init
	ErrNotInitialized = errors.New("fold: engine not initialized")
	// ErrNoSteps 尚未证明任何一步
	ErrNoSteps = errors.New("fold: no steps proven")
	// ErrStateLen 状态向量长度错误
	ErrStateLen = errors.New("fold: wrong state length")
	// ErrBrokenChain 随机化证明的链接承诺不连续
	ErrBrokenChain = errors.New("fold: broken link chain")
)

// Engine IVC 引擎
//
// ⚠️ 同一实例不能并发折叠多条链。
type Engine[I any] interface {
	// Init 以初始状态开始一条新链
	Init(z0 []fr.Element) error
	// ProveStep 证明一步：当前状态在外部输入 ext 下得到 zNext
	ProveStep(ctx context.Context, ext I, zNext []fr.Element) error
	// Randomize 输出只暴露首尾状态的证明
	Randomize() (*RandomizedProof, error)
	// Verify 验证随机化证明
	Verify(rp *RandomizedProof) error
}

// RandomizedProof 折叠结果
//
// Links[k] = H(z_k..., b_k)。中间状态只以盲化承诺出现，
// 只有首尾状态及其盲化因子是公开的。
type RandomizedProof struct {
	Z0     []fr.Element `json:"z0"`
	Zn     []fr.Element `json:"zn"`
	B0     fr.Element   `json:"b0"`
	Bn     fr.Element   `json:"bn"`
	Links  []fr.Element `json:"links"`
	Proofs [][]byte     `json:"proofs"`
}

// Steps 折叠的步数
func (rp *RandomizedProof) Steps() int {
	return len(rp.Proofs)
}

// link 盲化状态承诺
func link(z []fr.Element, b fr.Element) fr.Element {
	return object.Hash(append(append([]fr.Element{}, z...), b)...)
}

// stepCircuit 把 StepCircuit 包装成单步 Groth16 电路
//
// 📋 **公开输入**：[CIn, COut]
type stepCircuit[I any] struct {
	CIn  frontend.Variable `gnark:",public"`
	COut frontend.Variable `gnark:",public"`

	Z     []frontend.Variable
	BIn   frontend.Variable
	ZNext []frontend.Variable
	BOut  frontend.Variable
	Ext   I

	step StepCircuit[I] `gnark:"-"`
}

func newStepCircuit[I any](step StepCircuit[I]) *stepCircuit[I] {
	n := step.StateLen()
	return &stepCircuit[I]{
		Z:     make([]frontend.Variable, n),
		ZNext: make([]frontend.Variable, n),
		Ext:   step.NewInput(),
		step:  step,
	}
}

// Define 实现 frontend.Circuit
func (c *stepCircuit[I]) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	api.AssertIsEqual(c.CIn, h.Hash(append(append([]frontend.Variable{}, c.Z...), c.BIn)...))
	out, err := c.step.Step(api, c.Z, c.Ext)
	if err != nil {
		return err
	}
	if len(out) != len(c.ZNext) {
		return fmt.Errorf("%w: step returned %d, want %d", ErrStateLen, len(out), len(c.ZNext))
	}
	for i := range out {
		api.AssertIsEqual(out[i], c.ZNext[i])
	}
	api.AssertIsEqual(c.COut, h.Hash(append(append([]frontend.Variable{}, c.ZNext...), c.BOut)...))
	return nil
}

// assign 构造一步的完整赋值
func (c *stepCircuit[I]) assign(z []fr.Element, bIn fr.Element, zNext []fr.Element, bOut fr.Element, ext I) *stepCircuit[I] {
	out := &stepCircuit[I]{
		CIn:   object.Big(link(z, bIn)),
		COut:  object.Big(link(zNext, bOut)),
		Z:     make([]frontend.Variable, len(z)),
		BIn:   object.Big(bIn),
		ZNext: make([]frontend.Variable, len(zNext)),
		BOut:  object.Big(bOut),
		Ext:   ext,
		step:  c.step,
	}
	for i := range z {
		out.Z[i] = object.Big(z[i])
	}
	for i := range zNext {
		out.ZNext[i] = object.Big(zNext[i])
	}
	return out
}

// SequentialEngine 参考 IVC 引擎：每一步一个 Groth16 证明，
// 相邻两步通过盲化状态承诺链接
//
// 🎯 **特点**：
// - 证明大小随步数线性增长，验证者看不到中间状态
// - 步进电路只编译一次（经 CircuitManager 缓存）
type SequentialEngine[I any] struct {
	step     StepCircuit[I]
	keys     *zkproof.Keys
	prover   *zkproof.Prover
	verifier zkproof.Verifier
	rng      io.Reader
	logger   log.Logger

	mu     sync.Mutex
	z0     []fr.Element
	b0     fr.Element
	z      []fr.Element
	b      fr.Element
	links  []fr.Element
	proofs [][]byte
}

var _ Engine[FoldInputVar] = (*SequentialEngine[FoldInputVar])(nil)

// NewSequentialEngine 编译步进电路并创建引擎
func NewSequentialEngine[I any](
	ctx context.Context,
	step StepCircuit[I],
	cm *zkproof.CircuitManager,
	prover *zkproof.Prover,
	verifier zkproof.Verifier,
	rng io.Reader,
	logger log.Logger,
) (*SequentialEngine[I], error) {
	keys, err := cm.Setup(ctx, step.ID(), newStepCircuit(step))
	if err != nil {
		return nil, err
	}
	return &SequentialEngine[I]{
		step:     step,
		keys:     keys,
		prover:   prover,
		verifier: verifier,
		rng:      rng,
		logger:   logger,
	}, nil
}

// Init 实现 Engine
func (e *SequentialEngine[I]) Init(z0 []fr.Element) error {
	if len(z0) != e.step.StateLen() {
		return fmt.Errorf("%w: %d", ErrStateLen, len(z0))
	}
	b, err := object.Random(e.rng)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.z0 = append([]fr.Element(nil), z0...)
	e.b0 = b
	e.z = e.z0
	e.b = b
	e.links = []fr.Element{link(z0, b)}
	e.proofs = nil
	return nil
}

// ProveStep 实现 Engine
func (e *SequentialEngine[I]) ProveStep(ctx context.Context, ext I, zNext []fr.Element) error {
	if len(zNext) != e.step.StateLen() {
		return fmt.Errorf("%w: %d", ErrStateLen, len(zNext))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.links == nil {
		return ErrNotInitialized
	}
	bNext, err := object.Random(e.rng)
	if err != nil {
		return err
	}
	assignment := newStepCircuit(e.step).assign(e.z, e.b, zNext, bNext, ext)
	proof, err := e.prover.Prove(ctx, e.keys, assignment)
	if err != nil {
		return fmt.Errorf("折叠第 %d 步失败: %w", len(e.proofs), err)
	}
	e.z = append([]fr.Element(nil), zNext...)
	e.b = bNext
	e.links = append(e.links, link(zNext, bNext))
	e.proofs = append(e.proofs, proof)
	if e.logger != nil {
		e.logger.Debugf("折叠步骤完成: circuit=%s, step=%d", e.keys.ID, len(e.proofs))
	}
	return nil
}

// Randomize 实现 Engine
func (e *SequentialEngine[I]) Randomize() (*RandomizedProof, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.links == nil {
		return nil, ErrNotInitialized
	}
	if len(e.proofs) == 0 {
		return nil, ErrNoSteps
	}
	return &RandomizedProof{
		Z0:     append([]fr.Element(nil), e.z0...),
		Zn:     append([]fr.Element(nil), e.z...),
		B0:     e.b0,
		Bn:     e.b,
		Links:  append([]fr.Element(nil), e.links...),
		Proofs: append([][]byte(nil), e.proofs...),
	}, nil
}

// Verify 实现 Engine
func (e *SequentialEngine[I]) Verify(rp *RandomizedProof) error {
	if rp == nil || len(rp.Proofs) == 0 {
		return ErrNoSteps
	}
	n := e.step.StateLen()
	if len(rp.Z0) != n || len(rp.Zn) != n {
		return ErrStateLen
	}
	if len(rp.Links) != len(rp.Proofs)+1 {
		return fmt.Errorf("%w: %d links for %d proofs", ErrBrokenChain, len(rp.Links), len(rp.Proofs))
	}
	if link(rp.Z0, rp.B0) != rp.Links[0] || link(rp.Zn, rp.Bn) != rp.Links[len(rp.Links)-1] {
		return fmt.Errorf("%w: endpoints do not open", ErrBrokenChain)
	}
	for k, proof := range rp.Proofs {
		if err := e.verifier.Verify(e.keys.VK, proof, []fr.Element{rp.Links[k], rp.Links[k+1]}); err != nil {
			return fmt.Errorf("折叠第 %d 步验证失败: %w", k, err)
		}
	}
	return nil
}
