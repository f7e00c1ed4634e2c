package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// Scanner 一种扫描电路的形状：回调方法表、批宽与两棵树的深度
type Scanner[D user.UserData] struct {
	Name     string
	Methods  []interaction.Callback[D]
	Width    int
	ObjDepth int
	CbDepth  int
}

// Validate 检查配置
func (s *Scanner[D]) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scan: empty scanner name")
	}
	if s.Width <= 0 || s.ObjDepth <= 0 || s.CbDepth <= 0 {
		return fmt.Errorf("scan %q: width and depths must be positive", s.Name)
	}
	for _, m := range s.Methods {
		if m.Method == nil || m.Predicate == nil {
			return fmt.Errorf("scan %q: callback %d missing method or predicate", s.Name, m.MethodID)
		}
	}
	if err := checkMethods(s.Methods); err != nil {
		return fmt.Errorf("scan %q: %w", s.Name, err)
	}
	return nil
}

// CircuitID 电路缓存ID
func (s *Scanner[D]) CircuitID() string {
	return circuitID(s.Name, user.DataWidth[D](), s.Width, s.ObjDepth, s.CbDepth, MethodTable(s.Methods))
}

// Circuit 分配空电路
func (s *Scanner[D]) Circuit() *ScanCircuit {
	return NewScanCircuit(user.DataWidth[D](), s.Width, s.ObjDepth, s.CbDepth, MethodTable(s.Methods))
}

// GenerateKeys 编译扫描电路并执行可信设置
func (s *Scanner[D]) GenerateKeys(ctx context.Context, cm *zkproof.CircuitManager) (*zkproof.Keys, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return cm.Setup(ctx, s.CircuitID(), s.Circuit())
}

// Prepare 从票据簿取下一批票据并向回调账本索取见证
//
// 已调用的票据取成员见证，未调用的取非成员见证；未激活的槽位以空见证填充，
// 其根取账本当前根。
func (s *Scanner[D]) Prepare(ctx context.Context, u *user.User[D], cbul bulletin.PublicCallbackBulletin, curTime object.Time) (*PubScanArgs[D], *PrivScanArgs, error) {
	root, err := cbul.MembershipPub(ctx)
	if err != nil {
		return nil, nil, err
	}
	w := s.Width
	pub := &PubScanArgs[D]{
		MembPub:  make([]fr.Element, w),
		NmembPub: make([]fr.Element, w),
		CurTime:  curTime,
		Bulletin: cbul,
		Methods:  s.Methods,
	}
	priv := &PrivScanArgs{
		Tickets:   make([]ticket.CallbackEntry, w),
		Active:    make([]bool, w),
		EncArgs:   make([]fr.Element, w),
		PostTimes: make([]object.Time, w),
		MembPriv:  make([]bulletin.CallbackWitness, w),
		NmembPriv: make([]bulletin.CallbackWitness, w),
	}

	pending := u.Tickets.Peek(w)
	for i := 0; i < w; i++ {
		pub.MembPub[i], pub.NmembPub[i] = root, root
		priv.MembPriv[i] = bulletin.EmptyCallbackWitness(s.CbDepth)
		priv.NmembPriv[i] = bulletin.EmptyCallbackWitness(s.CbDepth)
		if i >= len(pending) {
			continue
		}
		entry := pending[i].Entry
		wit, err := cbul.Witness(ctx, entry.Tik)
		if err != nil {
			return nil, nil, fmt.Errorf("获取票据见证失败: %w", err)
		}
		if len(wit.Proof.Siblings) != s.CbDepth {
			return nil, nil, fmt.Errorf("回调账本深度 %d 与扫描器深度 %d 不一致", len(wit.Proof.Siblings), s.CbDepth)
		}
		priv.Tickets[i] = entry
		priv.Active[i] = true
		if wit.Member {
			priv.MembPriv[i] = *wit
			pub.MembPub[i] = wit.Root
			priv.EncArgs[i] = wit.Leaf.Ct
			priv.PostTimes[i] = wit.Leaf.Time
		} else {
			priv.NmembPriv[i] = *wit
			pub.NmembPub[i] = wit.Root
		}
	}
	return pub, priv, nil
}

// ScanAndProve 准备批次、运行原生状态机并生成扫描证明
//
// 返回的 ExecutedMethod 的参数段为 pub.Args()，没有回调承诺。
func (s *Scanner[D]) ScanAndProve(
	ctx context.Context,
	rng io.Reader,
	prover *zkproof.Prover,
	keys *zkproof.Keys,
	u *user.User[D],
	obul bulletin.PublicObjectBulletin,
	cbul bulletin.PublicCallbackBulletin,
	curTime object.Time,
) (*interaction.ExecutedMethod, *user.User[D], *PubScanArgs[D], error) {
	pub, priv, err := s.Prepare(ctx, u, cbul, curTime)
	if err != nil {
		return nil, nil, nil, err
	}
	memb, err := obul.Witness(ctx, u.Commit())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("获取对象成员证明失败: %w", err)
	}
	em, next, assignment, err := s.execute(ctx, rng, u, pub, priv, *memb)
	if err != nil {
		return nil, nil, nil, err
	}
	proof, err := prover.Prove(ctx, keys, assignment)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("扫描证明失败: %w", err)
	}
	em.Proof = proof
	return em, next, pub, nil
}

// execute 运行原生状态机、刷新随机数并构造电路赋值
func (s *Scanner[D]) execute(
	ctx context.Context,
	rng io.Reader,
	u *user.User[D],
	pub *PubScanArgs[D],
	priv *PrivScanArgs,
	memb object.MerkleWitness,
) (*interaction.ExecutedMethod, *user.User[D], *ScanCircuit, error) {
	if priv.Width() != s.Width {
		return nil, nil, nil, ErrWidth
	}
	if len(memb.Proof.Siblings) != s.ObjDepth {
		return nil, nil, nil, fmt.Errorf("对象账本深度 %d 与扫描器深度 %d 不一致", len(memb.Proof.Siblings), s.ObjDepth)
	}
	next, err := ScanMethod(ctx, u, pub, priv)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := next.Refresh(rng); err != nil {
		return nil, nil, nil, err
	}

	em := &interaction.ExecutedMethod{
		NewObject:    next.Commit(),
		OldNullifier: u.Nullify(),
		MembPub:      memb.Root,
	}
	pv := pub.Assign()
	c := s.Circuit()
	c.NewCom = object.Big(em.NewObject)
	c.OldNul = object.Big(em.OldNullifier)
	c.MembPub = pv.MembPub
	c.NmembPub = pv.NmembPub
	c.CurTime = pv.CurTime
	c.ObjRoot = object.Big(memb.Root)
	c.Old = u.Assign()
	c.New = next.Assign()
	c.Priv = priv.Assign()
	c.ObjPath = memb.Proof.Assign()
	return em, next, c, nil
}
