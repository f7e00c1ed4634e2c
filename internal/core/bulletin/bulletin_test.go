package bulletin

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/clock"
	infraevent "github.com/weisyn/zkcallback/internal/core/infrastructure/event"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

const testDepth = 4

// stubVerifier 可控的证明验证器
type stubVerifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (v *stubVerifier) Verify(groth16.VerifyingKey, []byte, []fr.Element) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

// flakyStore 前 failures 次 SetMany 失败
type flakyStore struct {
	storage.KVStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.mu.Unlock()
	return s.KVStore.SetMany(ctx, entries)
}

func newStore(t *testing.T) storage.KVStore {
	s, err := memory.New(&storageconfig.MemoryOptions{Shards: 4, MaxEntriesInWindow: 64, MaxEntrySize: 256}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newObjectLedger(t *testing.T, store storage.KVStore, opts Options) *ObjectLedger {
	opts.Depth = testDepth
	l, err := NewObjectLedger(context.Background(), store, opts)
	require.NoError(t, err)
	return l
}

func newCallbackLedger(t *testing.T, store storage.KVStore, opts Options) *CallbackLedger {
	opts.Depth = testDepth
	l, err := NewCallbackLedger(context.Background(), store, opts)
	require.NoError(t, err)
	return l
}

func randomElement(t *testing.T) fr.Element {
	e, err := object.Random(rand.Reader)
	require.NoError(t, err)
	return e
}

// submission 构造一个引用当前根的提交（验证器为桩，证明内容无关）
func submission(t *testing.T, l *ObjectLedger) *ObjectSubmission {
	root, err := l.MembershipPub(context.Background())
	require.NoError(t, err)
	return &ObjectSubmission{
		Object:       randomElement(t),
		OldNul:       randomElement(t),
		CbComList:    []fr.Element{randomElement(t)},
		Args:         []fr.Element{object.FromUint64(3)},
		Proof:        []byte{1},
		VerifyingKey: groth16.NewVerifyingKey(ecc.BN254),
		MembPub:      root,
	}
}

// ============================================================================
//                                对象账本
// ============================================================================

func TestObjectLedger_JoinAndWitness(t *testing.T) {
	ctx := context.Background()
	bus := infraevent.New(nil, 8)
	l := newObjectLedger(t, newStore(t), Options{Bus: bus})

	coms := []fr.Element{randomElement(t), randomElement(t), randomElement(t)}
	for _, c := range coms {
		require.NoError(t, AppendObjectOnly(ctx, l, c, nil))
	}
	require.Equal(t, 3, l.Len())

	for _, c := range coms {
		w, err := l.Witness(ctx, c)
		require.NoError(t, err)
		require.True(t, w.Proof.Verify(c, w.Root))
		known, err := l.IsKnownMembershipPub(ctx, w.Root)
		require.NoError(t, err)
		require.True(t, known)
	}

	_, err := l.Witness(ctx, randomElement(t))
	require.ErrorIs(t, err, ErrNotFound)

	// 同一承诺不能重复加入
	err = AppendObjectOnly(ctx, l, coms[0], nil)
	require.True(t, IsVerifyError(err))

	history := bus.History(event.EventTypeObjectAppended)
	require.Len(t, history, 3)
	require.True(t, history[2].(ObjectAppendedEvent).Joined)
}

func TestObjectLedger_VerifyInteractAndAppend(t *testing.T) {
	ctx := context.Background()
	l := newObjectLedger(t, newStore(t), Options{})
	v := &stubVerifier{}

	sub := submission(t, l)
	require.NoError(t, VerifyInteractAndAppend(ctx, l, v, sub))

	in, err := l.VerifyIn(ctx, sub)
	require.NoError(t, err)
	require.True(t, in)

	fresh, err := l.HasNeverReceivedNul(ctx, sub.OldNul)
	require.NoError(t, err)
	require.False(t, fresh)

	rec, err := l.Record(ctx, sub.Object)
	require.NoError(t, err)
	require.Equal(t, 0, rec.Index)
	require.Equal(t, sub.Args, rec.Args)
	require.Equal(t, sub.OldNul, rec.OldNul)
}

func TestObjectLedger_RejectsNullifierReplay(t *testing.T) {
	ctx := context.Background()
	l := newObjectLedger(t, newStore(t), Options{})
	v := &stubVerifier{}

	first := submission(t, l)
	require.NoError(t, VerifyInteractAndAppend(ctx, l, v, first))

	replay := submission(t, l)
	replay.OldNul = first.OldNul
	err := VerifyInteractAndAppend(ctx, l, v, replay)
	require.True(t, IsVerifyError(err))
	require.False(t, IsAppendError(err))
	require.Equal(t, 1, l.Len())

	// 绕过验证直接追加，由存储层的 SetIfAbsent 拒绝
	err = l.AppendValue(ctx, replay)
	require.ErrorIs(t, err, ErrReplay)
	require.Equal(t, 1, l.Len())
}

func TestObjectLedger_ConcurrentReplay(t *testing.T) {
	ctx := context.Background()
	l := newObjectLedger(t, newStore(t), Options{})
	v := &stubVerifier{}
	nul := randomElement(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		sub := submission(t, l)
		sub.OldNul = nul
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = VerifyInteractAndAppend(ctx, l, v, sub)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			require.True(t, IsVerifyError(err))
		}
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, l.Len())
}

func TestObjectLedger_VerificationFailures(t *testing.T) {
	ctx := context.Background()
	l := newObjectLedger(t, newStore(t), Options{})

	// 证明无效
	err := VerifyInteractAndAppend(ctx, l, &stubVerifier{err: errors.New("bad proof")}, submission(t, l))
	require.True(t, IsVerifyError(err))

	// 未知的成员根
	sub := submission(t, l)
	sub.MembPub = randomElement(t)
	v := &stubVerifier{}
	err = VerifyInteractAndAppend(ctx, l, v, sub)
	require.True(t, IsVerifyError(err))
	require.Equal(t, 0, v.calls)

	// 缺少验证密钥
	sub = submission(t, l)
	sub.VerifyingKey = nil
	ok, err := VerifyInteraction(ctx, l, v, sub)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, l.Len())
}

func TestObjectLedger_RootHistoryWindow(t *testing.T) {
	ctx := context.Background()
	l := newObjectLedger(t, newStore(t), Options{RootHistory: 2})

	first, err := l.MembershipPub(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, AppendObjectOnly(ctx, l, randomElement(t), nil))
	}
	known, err := l.IsKnownMembershipPub(ctx, first)
	require.NoError(t, err)
	require.False(t, known)

	cur, err := l.MembershipPub(ctx)
	require.NoError(t, err)
	known, err = l.IsKnownMembershipPub(ctx, cur)
	require.NoError(t, err)
	require.True(t, known)
}

func TestObjectLedger_AppendFailureIsAppendError(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KVStore: newStore(t), failures: 1}
	l := newObjectLedger(t, store, Options{})

	err := VerifyInteractAndAppend(ctx, l, &stubVerifier{}, submission(t, l))
	require.True(t, IsAppendError(err))
	require.Equal(t, 0, l.Len())
}

func TestObjectLedger_RetryAfterAppendFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KVStore: newStore(t), failures: 1}
	l := newObjectLedger(t, store, Options{})
	sub := submission(t, l)

	require.True(t, IsAppendError(VerifyInteractAndAppend(ctx, l, &stubVerifier{}, sub)))
	fresh, err := l.HasNeverReceivedNul(ctx, sub.OldNul)
	require.NoError(t, err)
	require.True(t, fresh)

	// 同一提交重试成功，之后作废符才算已接受
	require.NoError(t, VerifyInteractAndAppend(ctx, l, &stubVerifier{}, sub))
	require.Equal(t, 1, l.Len())
	fresh, err = l.HasNeverReceivedNul(ctx, sub.OldNul)
	require.NoError(t, err)
	require.False(t, fresh)
	ok, err := l.VerifyIn(ctx, sub)
	require.NoError(t, err)
	require.True(t, ok)

	// 重放仍被拒绝
	again := submission(t, l)
	again.OldNul = sub.OldNul
	require.True(t, IsVerifyError(VerifyInteractAndAppend(ctx, l, &stubVerifier{}, again)))
	require.ErrorIs(t, l.AppendValue(ctx, again), ErrReplay)
}

func TestObjectLedger_AbandonedClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KVStore: newStore(t), failures: 1}
	l := newObjectLedger(t, store, Options{})
	first := submission(t, l)
	require.True(t, IsAppendError(VerifyInteractAndAppend(ctx, l, &stubVerifier{}, first)))

	// 另一份使用同一作废符的提交接管占位
	second := submission(t, l)
	second.OldNul = first.OldNul
	require.NoError(t, VerifyInteractAndAppend(ctx, l, &stubVerifier{}, second))

	reopened := newObjectLedger(t, store, Options{})
	fresh, err := reopened.HasNeverReceivedNul(ctx, first.OldNul)
	require.NoError(t, err)
	require.False(t, fresh)
	require.ErrorIs(t, reopened.AppendValue(ctx, first), ErrReplay)
}

func TestObjectLedger_RebuildFromStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	l := newObjectLedger(t, store, Options{})

	require.NoError(t, AppendObjectOnly(ctx, l, randomElement(t), nil))
	sub := submission(t, l)
	require.NoError(t, VerifyInteractAndAppend(ctx, l, &stubVerifier{}, sub))
	root, err := l.MembershipPub(ctx)
	require.NoError(t, err)

	reopened := newObjectLedger(t, store, Options{})
	require.Equal(t, 2, reopened.Len())
	got, err := reopened.MembershipPub(ctx)
	require.NoError(t, err)
	require.Equal(t, root, got)

	w, err := reopened.Witness(ctx, sub.Object)
	require.NoError(t, err)
	require.True(t, w.Proof.Verify(sub.Object, got))

	fresh, err := reopened.HasNeverReceivedNul(ctx, sub.OldNul)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestSignedJoins(t *testing.T) {
	ctx := context.Background()
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	l := newObjectLedger(t, newStore(t), Options{Authorizer: SignedJoins{PK: sk.Public()}})

	com := randomElement(t)
	err = AppendObjectOnly(ctx, l, com, nil)
	require.True(t, IsVerifyError(err))
	require.ErrorIs(t, err, ErrJoinRejected)

	other, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	forged, err := other.Sign(com)
	require.NoError(t, err)
	require.True(t, IsVerifyError(AppendObjectOnly(ctx, l, com, forged)))

	sig, err := sk.Sign(com)
	require.NoError(t, err)
	require.NoError(t, AppendObjectOnly(ctx, l, com, sig))
	require.Equal(t, 1, l.Len())
}

// ============================================================================
//                                回调账本
// ============================================================================

// call 生成一次合法调用：重随机化密钥签名密文
func call(t *testing.T, sk *tikcrypto.SigningKey, arg uint64) (tikcrypto.TicketKey, fr.Element, []byte) {
	r, err := tikcrypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	rsk, err := sk.Rerand(r)
	require.NoError(t, err)
	enc, err := tikcrypto.NewEncKey(rand.Reader)
	require.NoError(t, err)
	ct, sig, err := tikcrypto.EncryptAndSign(object.FromUint64(arg), enc, rsk)
	require.NoError(t, err)
	return rsk.Public(), ct, sig
}

func TestCallbackLedger_CallLookupAndWitness(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManualClock(5)
	bus := infraevent.New(nil, 8)
	l := newCallbackLedger(t, newStore(t), Options{Clock: clk, Bus: bus})
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)

	var called []tikcrypto.TicketKey
	for i := 0; i < 5; i++ {
		tik, ct, sig := call(t, sk, uint64(i))
		require.NoError(t, VerifyCallAndAppend(ctx, l, tik, ct, sig))
		called = append(called, tik)
		clk.Advance(1)

		got, at, ok, err := l.Lookup(ctx, tik)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, ct, got)
		require.Equal(t, object.Time(5+i), at)

		in, err := l.VerifyIn(ctx, tik, ct)
		require.NoError(t, err)
		require.True(t, in)
	}
	require.Equal(t, 5, l.Calls())
	require.Len(t, bus.History(event.EventTypeTicketCalled), 5)

	for _, tik := range called {
		w, err := l.Witness(ctx, tik)
		require.NoError(t, err)
		require.True(t, w.Member)
		require.True(t, w.Verify(ticket.KeyOf(tik)))
	}

	// 未调用票据得到非成员见证
	for i := 0; i < 5; i++ {
		tik, _, _ := call(t, sk, 0)
		_, _, ok, err := l.Lookup(ctx, tik)
		require.NoError(t, err)
		require.False(t, ok)
		w, err := l.Witness(ctx, tik)
		require.NoError(t, err)
		require.False(t, w.Member)
		require.True(t, w.Verify(ticket.KeyOf(tik)))
	}
}

func TestCallbackLedger_RejectsBadCalls(t *testing.T) {
	ctx := context.Background()
	l := newCallbackLedger(t, newStore(t), Options{})
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)

	tik, ct, sig := call(t, sk, 1)

	// 签名与密文不匹配
	other := object.FromUint64(42)
	err = VerifyCallAndAppend(ctx, l, tik, other, sig)
	require.True(t, IsVerifyError(err))

	require.NoError(t, VerifyCallAndAppend(ctx, l, tik, ct, sig))

	// 同一票据只能调用一次
	err = VerifyCallAndAppend(ctx, l, tik, ct, sig)
	require.True(t, IsVerifyError(err))
	err = l.AppendValue(ctx, tik, other, sig)
	require.ErrorIs(t, err, ErrReplay)
	require.Equal(t, 1, l.Calls())
}

func TestCallbackLedger_ResumesAfterAppendFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{KVStore: newStore(t), failures: 1}
	l := newCallbackLedger(t, store, Options{Clock: clock.NewManualClock(3)})
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	tik, ct, sig := call(t, sk, 9)

	err = VerifyCallAndAppend(ctx, l, tik, ct, sig)
	require.True(t, IsAppendError(err))
	require.Equal(t, 0, l.Calls())

	// 重试同一次调用成功
	require.NoError(t, VerifyCallAndAppend(ctx, l, tik, ct, sig))
	require.Equal(t, 1, l.Calls())

	// 占位记录与新的密文不一致时按重放处理
	tik2, ct2, sig2 := call(t, sk, 1)
	store.failures = 1
	require.True(t, IsAppendError(VerifyCallAndAppend(ctx, l, tik2, ct2, sig2)))
	err = l.AppendValue(ctx, tik2, object.FromUint64(2), sig2)
	require.ErrorIs(t, err, ErrReplay)
}

func TestCallbackLedger_RebuildFromStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	l := newCallbackLedger(t, store, Options{Clock: clock.NewManualClock(1)})
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)

	var tiks []tikcrypto.TicketKey
	for i := 0; i < 3; i++ {
		tik, ct, sig := call(t, sk, uint64(i))
		require.NoError(t, VerifyCallAndAppend(ctx, l, tik, ct, sig))
		tiks = append(tiks, tik)
	}
	root, err := l.MembershipPub(ctx)
	require.NoError(t, err)

	reopened := newCallbackLedger(t, store, Options{})
	require.Equal(t, 3, reopened.Calls())
	got, err := reopened.MembershipPub(ctx)
	require.NoError(t, err)
	require.Equal(t, root, got)
	for _, tik := range tiks {
		fresh, err := reopened.HasNeverReceivedTik(ctx, tik)
		require.NoError(t, err)
		require.False(t, fresh)
	}
}

// ============================================================================
//                                电路约束
// ============================================================================

type membNmembCircuit struct {
	Root   frontend.Variable `gnark:",public"`
	Key    frontend.Variable
	Active frontend.Variable
	Memb   CallbackWitnessVar
	Nmemb  CallbackWitnessVar
	Called frontend.Variable
}

func (c *membNmembCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	called := EnforceMembNmemb(h, c.Key, c.Active, c.Memb, c.Root, c.Nmemb, c.Root)
	api.AssertIsEqual(called, c.Called)
	return nil
}

func TestEnforceMembNmemb(t *testing.T) {
	ctx := context.Background()
	l := newCallbackLedger(t, newStore(t), Options{})
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		tik, ct, sig := call(t, sk, uint64(i))
		require.NoError(t, VerifyCallAndAppend(ctx, l, tik, ct, sig))
	}
	calledTik, ct, sig := call(t, sk, 7)
	require.NoError(t, VerifyCallAndAppend(ctx, l, calledTik, ct, sig))
	pendingTik, _, _ := call(t, sk, 0)

	root, err := l.MembershipPub(ctx)
	require.NoError(t, err)
	membW, err := l.Witness(ctx, calledTik)
	require.NoError(t, err)
	nmembW, err := l.Witness(ctx, pendingTik)
	require.NoError(t, err)
	empty := EmptyCallbackWitness(testDepth)

	circuit := &membNmembCircuit{Memb: NewCallbackWitnessVar(testDepth), Nmemb: NewCallbackWitnessVar(testDepth)}
	assign := func(tik tikcrypto.TicketKey, active int, memb, nmemb *CallbackWitness, called int) *membNmembCircuit {
		return &membNmembCircuit{
			Root:   object.Big(root),
			Key:    object.Big(ticket.KeyOf(tik)),
			Active: active,
			Memb:   memb.Assign(),
			Nmemb:  nmemb.Assign(),
			Called: called,
		}
	}
	field := ecc.BN254.ScalarField()

	// 已调用：成员见证
	require.NoError(t, test.IsSolved(circuit, assign(calledTik, 1, membW, &empty, 1), field))
	// 未调用：非成员见证
	require.NoError(t, test.IsSolved(circuit, assign(pendingTik, 1, &empty, nmembW, 0), field))
	// 未调用的票据不能借用别人的成员见证
	require.Error(t, test.IsSolved(circuit, assign(pendingTik, 1, membW, &empty, 1), field))
	// 已调用的票据不能给出非成员见证
	require.Error(t, test.IsSolved(circuit, assign(calledTik, 1, &empty, nmembW, 0), field))
	// 未激活槽位不受约束
	require.NoError(t, test.IsSolved(circuit, assign(pendingTik, 0, &empty, &empty, 0), field))
}
