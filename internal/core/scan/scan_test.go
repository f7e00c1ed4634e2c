package scan

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/clock"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/internal/demo"
)

const testDepth = 4

type fixture struct {
	ctx  context.Context
	sk   *tikcrypto.SigningKey
	clk  *clock.ManualClock
	obul *bulletin.ObjectLedger
	cbul *bulletin.CallbackLedger
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	store, err := memory.New(&storageconfig.MemoryOptions{Shards: 4, MaxEntriesInWindow: 64, MaxEntrySize: 256}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	clk := clock.NewManualClock(1)
	obul, err := bulletin.NewObjectLedger(ctx, store, bulletin.Options{Depth: testDepth})
	require.NoError(t, err)
	cbul, err := bulletin.NewCallbackLedger(ctx, store, bulletin.Options{Depth: testDepth, Clock: clk})
	require.NoError(t, err)
	return &fixture{ctx: ctx, sk: sk, clk: clk, obul: obul, cbul: cbul}
}

func scanner(width int) *Scanner[demo.Tokens] {
	return &Scanner[demo.Tokens]{
		Name:     "tokens",
		Methods:  demo.Methods(),
		Width:    width,
		ObjDepth: testDepth,
		CbDepth:  testDepth,
	}
}

// issued 已签发的票据与服务方保留的重随机化标量
type issued struct {
	com ticket.CallbackCom
	r   fr.Element
}

// issue 为用户签发一张票据并注册进回调哈希
func (f *fixture) issue(t *testing.T, u *user.User[demo.Tokens], cb interaction.Callback[demo.Tokens]) issued {
	r, err := tikcrypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	enc, err := tikcrypto.NewEncKey(rand.Reader)
	require.NoError(t, err)
	comRand, err := object.Random(rand.Reader)
	require.NoError(t, err)
	com := ticket.CallbackCom{
		Entry: ticket.CallbackEntry{
			Tik:        f.sk.Public().Rerand(r),
			EncKey:     enc,
			MethodID:   cb.MethodID,
			Expirable:  cb.Expirable,
			Expiration: cb.Expiration,
		},
		ComRand: comRand,
	}
	u.RegisterTicket(com)
	return issued{com: com, r: r}
}

// call 服务方以参数 arg 调用票据
func (f *fixture) call(t *testing.T, is issued, arg uint64) {
	rsk, err := f.sk.Rerand(is.r)
	require.NoError(t, err)
	ct, sig, err := tikcrypto.EncryptAndSign(object.FromUint64(arg), is.com.Entry.EncKey, rsk)
	require.NoError(t, err)
	require.NoError(t, bulletin.VerifyCallAndAppend(f.ctx, f.cbul, rsk.Public(), ct, sig))
}

// objWitness 确保用户承诺在对象账本中并返回成员证明
func (f *fixture) objWitness(t *testing.T, u *user.User[demo.Tokens]) object.MerkleWitness {
	com := u.Commit()
	if _, err := f.obul.Witness(f.ctx, com); err != nil {
		require.NoError(t, bulletin.AppendObjectOnly(f.ctx, f.obul, com, nil))
	}
	w, err := f.obul.Witness(f.ctx, com)
	require.NoError(t, err)
	return *w
}

// step 扫描一个批次，同时检查电路在相同输入下可满足
func (f *fixture) step(t *testing.T, s *Scanner[demo.Tokens], u *user.User[demo.Tokens], curTime object.Time) *user.User[demo.Tokens] {
	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, curTime)
	require.NoError(t, err)
	em, next, assignment, err := s.execute(f.ctx, rand.Reader, u, pub, priv, f.objWitness(t, u))
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(s.Circuit(), assignment, ecc.BN254.ScalarField()))
	require.Equal(t, next.Commit(), em.NewObject)
	require.Equal(t, u.Nullify(), em.OldNullifier)
	return next
}

// scanAll 扫描直到收敛
func (f *fixture) scanAll(t *testing.T, s *Scanner[demo.Tokens], u *user.User[demo.Tokens], curTime object.Time) (*user.User[demo.Tokens], int) {
	steps := 0
	for {
		u = f.step(t, s, u, curTime)
		steps++
		if u.ZK.IsIngestOver {
			return u, steps
		}
		require.Less(t, steps, 16, "scan did not converge")
	}
}

func newUser(t *testing.T) *user.User[demo.Tokens] {
	u, err := user.New(demo.NewTokens(0), rand.Reader)
	require.NoError(t, err)
	return u
}

func TestScan_ConvergesAcrossChunkings(t *testing.T) {
	for _, width := range []int{1, 2, 3, 4} {
		f := newFixture(t)
		u := newUser(t)
		awarded := f.issue(t, u, demo.Award(false, 0))
		pending := f.issue(t, u, demo.Award(false, 0))
		revoke := f.issue(t, u, demo.Revoke(false, 0))
		f.call(t, awarded, 5)

		out, steps := f.scanAll(t, scanner(width), u, 1)
		require.Equal(t, (3+width-1)/width, steps, "width %d", width)

		require.Equal(t, object.FromUint64(5), out.Data.Points)
		require.True(t, out.Data.HasToken())
		want := ticket.Chain(fr.Element{}, pending.com.Entry, revoke.com.Entry)
		require.Equal(t, want, out.ZK.CallbackHash)
		require.Equal(t, want, out.ZK.OldInProgressCallbackHash)
		require.Equal(t, want, out.ZK.NewInProgressCallbackHash)
		require.Len(t, out.Tickets.Pending, 2)
		require.Equal(t, 2, out.Tickets.Remaining())
	}
}

func TestScan_CarriedTicketsAppliedInNextEpoch(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)
	award := f.issue(t, u, demo.Award(false, 0))
	revoke := f.issue(t, u, demo.Revoke(false, 0))

	u, _ = f.scanAll(t, s, u, 1)
	require.Equal(t, 2, u.Tickets.Remaining())

	f.call(t, award, 3)
	f.call(t, revoke, 0)
	u, _ = f.scanAll(t, s, u, 2)
	require.Equal(t, object.FromUint64(3), u.Data.Points)
	require.False(t, u.Data.HasToken())
	require.True(t, u.ZK.CallbackHash.IsZero())
	require.Equal(t, 0, u.Tickets.Remaining())
}

func TestScan_Expiry(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)
	late := f.issue(t, u, demo.Award(true, 10))
	f.issue(t, u, demo.Revoke(true, 10))

	// 过期后的调用作废，过期未调用的票据不再结转
	f.clk.Set(12)
	f.call(t, late, 9)
	out, _ := f.scanAll(t, s, u, 12)
	require.True(t, out.Data.Points.IsZero())
	require.True(t, out.Data.HasToken())
	require.True(t, out.ZK.CallbackHash.IsZero())
	require.Equal(t, 0, out.Tickets.Remaining())
}

func TestScan_CallBeforeExpirationApplies(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)
	award := f.issue(t, u, demo.Award(true, 10))
	keep := f.issue(t, u, demo.Revoke(true, 10))

	f.clk.Set(8)
	f.call(t, award, 4)
	out, _ := f.scanAll(t, s, u, 9)
	require.Equal(t, object.FromUint64(4), out.Data.Points)
	require.Equal(t, ticket.Chain(fr.Element{}, keep.com.Entry), out.ZK.CallbackHash)
}

func TestScan_EmptyBatchIsNoop(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)

	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, 1)
	require.NoError(t, err)
	require.Equal(t, 0, priv.NumActive())
	out, err := ScanMethod(f.ctx, u, pub, priv)
	require.NoError(t, err)
	require.Equal(t, u.Data, out.Data)
	require.Equal(t, u.ZK, out.ZK)

	// 电路同样接受
	next := f.step(t, s, u, 1)
	require.Equal(t, u.ZK.CallbackHash, next.ZK.CallbackHash)
	require.True(t, next.ZK.IsIngestOver)
}

func TestScan_TicketsRegisteredWhileOpen(t *testing.T) {
	f := newFixture(t)
	s := scanner(1)
	u := newUser(t)
	first := f.issue(t, u, demo.Award(false, 0))
	f.issue(t, u, demo.Award(false, 0))
	f.call(t, first, 2)

	u = f.step(t, s, u, 1)
	require.False(t, u.ZK.IsIngestOver)

	// 打开状态下注册的票据也会在本纪元内被见证
	third := f.issue(t, u, demo.Award(false, 0))
	f.call(t, third, 10)
	require.Equal(t, u.ZK.OldInProgressCallbackHash, ticket.Chain(fr.Element{}, first.com.Entry))

	u, steps := f.scanAll(t, s, u, 1)
	require.Equal(t, 2, steps)
	require.Equal(t, object.FromUint64(12), u.Data.Points)
	require.Equal(t, 1, u.Tickets.Remaining())
}

func TestScanMethod_RejectsInconsistentWitness(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)
	a := f.issue(t, u, demo.Award(false, 0))
	f.issue(t, u, demo.Award(false, 0))
	f.call(t, a, 1)

	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, 1)
	require.NoError(t, err)

	bad := *priv
	bad.EncArgs = append([]fr.Element(nil), priv.EncArgs...)
	bad.EncArgs[0] = object.FromUint64(77)
	_, err = ScanMethod(f.ctx, u, pub, &bad)
	require.ErrorIs(t, err, ErrInconsistent)

	// 已调用的票据不能伪装成未调用
	bad = *priv
	bad.MembPriv = append([]bulletin.CallbackWitness(nil), priv.MembPriv...)
	bad.MembPriv[0] = bulletin.EmptyCallbackWitness(testDepth)
	_, err = ScanMethod(f.ctx, u, pub, &bad)
	require.ErrorIs(t, err, ErrInconsistent)

	bad = *priv
	bad.Tickets = []ticket.CallbackEntry{priv.Tickets[1], priv.Tickets[0]}
	_, err = ScanMethod(f.ctx, u, pub, &bad)
	require.ErrorIs(t, err, ErrOutOfOrder)

	bad = *priv
	bad.Active = []bool{false, true}
	_, err = ScanMethod(f.ctx, u, pub, &bad)
	require.ErrorIs(t, err, ErrOutOfOrder)

	bad = *priv
	bad.PostTimes = bad.PostTimes[:1]
	_, err = ScanMethod(f.ctx, u, pub, &bad)
	require.ErrorIs(t, err, ErrWidth)
}

func TestScanMethod_RejectsOutdatedNonMembership(t *testing.T) {
	f := newFixture(t)
	s := scanner(1)
	u := newUser(t)
	revoke := f.issue(t, u, demo.Revoke(true, 10))

	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, 12)
	require.NoError(t, err)
	require.False(t, priv.NmembPriv[0].Member)

	// 见证取得之后、过期之前票据被调用：旧根下的非成员见证不能让它按过期丢弃
	f.clk.Set(8)
	f.call(t, revoke, 0)
	_, err = ScanMethod(f.ctx, u, pub, priv)
	require.ErrorIs(t, err, ErrStaleWitness)

	f.clk.Set(12)
	out, _ := f.scanAll(t, s, u, 12)
	require.False(t, out.Data.HasToken())
	require.Equal(t, 0, out.Tickets.Remaining())
}

func TestScanMethod_RejectsDuplicateMethods(t *testing.T) {
	f := newFixture(t)
	s := scanner(1)
	u := newUser(t)
	f.issue(t, u, demo.Award(false, 0))

	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, 1)
	require.NoError(t, err)
	pub.Methods = append(demo.Methods(), demo.Award(true, 3))
	_, err = ScanMethod(f.ctx, u, pub, priv)
	require.ErrorIs(t, err, ErrDuplicateMethod)
}

func TestScanCircuit_RejectsTampering(t *testing.T) {
	f := newFixture(t)
	s := scanner(2)
	u := newUser(t)
	a := f.issue(t, u, demo.Award(false, 0))
	f.issue(t, u, demo.Revoke(false, 0))
	f.call(t, a, 6)

	pub, priv, err := s.Prepare(f.ctx, u, f.cbul, 1)
	require.NoError(t, err)
	memb := f.objWitness(t, u)
	field := ecc.BN254.ScalarField()

	fresh := func() *ScanCircuit {
		_, _, c, err := s.execute(f.ctx, rand.Reader, u, pub, priv, memb)
		require.NoError(t, err)
		return c
	}
	require.NoError(t, test.IsSolved(s.Circuit(), fresh(), field))

	// 未应用调用结果
	c := fresh()
	c.New.Data[1] = 0
	require.Error(t, test.IsSolved(s.Circuit(), c, field))

	// 隐瞒已调用的票据
	c = fresh()
	c.Priv.MembPriv[0] = c.Priv.NmembPriv[1]
	require.Error(t, test.IsSolved(s.Circuit(), c, field))

	// 篡改调用密文
	c = fresh()
	c.Priv.EncArgs[0] = 1
	require.Error(t, test.IsSolved(s.Circuit(), c, field))

	// 跳过一个激活槽位
	c = fresh()
	c.Priv.Active[1] = 0
	require.Error(t, test.IsSolved(s.Circuit(), c, field))

	// 旧承诺不在对象根下
	c = fresh()
	c.ObjRoot = 3
	require.Error(t, test.IsSolved(s.Circuit(), c, field))
}

func TestScanner_Validate(t *testing.T) {
	s := scanner(0)
	require.Error(t, s.Validate())

	s = scanner(2)
	s.Methods = append(s.Methods, demo.Revoke(false, 0))
	require.ErrorIs(t, s.Validate(), ErrDuplicateMethod)

	require.NotEqual(t, scanner(1).CircuitID(), scanner(2).CircuitID())
}

func TestScanner_Groth16RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	f := newFixture(t)
	s := scanner(1)
	cm, err := zkproof.NewCircuitManager(nil, 2)
	require.NoError(t, err)
	keys, err := s.GenerateKeys(f.ctx, cm)
	require.NoError(t, err)
	require.Equal(t, 6, keys.NbPublic())

	u := newUser(t)
	a := f.issue(t, u, demo.Award(false, 0))
	f.call(t, a, 8)
	f.objWitness(t, u)

	em, next, pub, err := s.ScanAndProve(f.ctx, rand.Reader, zkproof.NewProver(nil, nil), keys, u, f.obul, f.cbul, 1)
	require.NoError(t, err)
	require.Equal(t, object.FromUint64(8), next.Data.Points)
	require.True(t, next.ZK.IsIngestOver)

	v := zkproof.NewVerifier(nil, nil)
	require.NoError(t, v.Verify(keys.VK, em.Proof, em.PublicInputs(pub.Args())))
	require.NoError(t, bulletin.VerifyInteractAndAppend(f.ctx, f.obul, v, em.Submission(pub.Args(), keys.VK)))
}
