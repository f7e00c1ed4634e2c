package ticket

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
)

func newEntry(t *testing.T, methodID uint64, expirable bool, exp object.Time) CallbackEntry {
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	r, err := tikcrypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	key, err := tikcrypto.NewEncKey(rand.Reader)
	require.NoError(t, err)
	return CallbackEntry{
		Tik:        sk.Public().Rerand(r),
		EncKey:     key,
		MethodID:   methodID,
		Expirable:  expirable,
		Expiration: exp,
	}
}

// chainCircuit 校验电路哈希链、票据承诺与账本键
type chainCircuit struct {
	Entries []CallbackEntryVar
	Rand    frontend.Variable
	Chain   frontend.Variable `gnark:",public"`
	Com     frontend.Variable `gnark:",public"`
	Key     frontend.Variable `gnark:",public"`
}

func (c *chainCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	var acc frontend.Variable = 0
	for _, e := range c.Entries {
		acc = AddToChainVar(h, acc, e)
	}
	api.AssertIsEqual(acc, c.Chain)
	api.AssertIsEqual(CommitVar(h, c.Entries[0], c.Rand), c.Com)
	api.AssertIsEqual(KeyVar(h, c.Entries[0]), c.Key)
	return nil
}

func TestChain_NativeMatchesCircuit(t *testing.T) {
	entries := []CallbackEntry{
		newEntry(t, 0, false, 0),
		newEntry(t, 1, true, 10),
		newEntry(t, 2, true, 3),
	}
	rnd, err := object.Random(rand.Reader)
	require.NoError(t, err)
	com := CallbackCom{Entry: entries[0], ComRand: rnd}

	circuit := &chainCircuit{Entries: make([]CallbackEntryVar, len(entries))}
	assignment := &chainCircuit{
		Entries: make([]CallbackEntryVar, len(entries)),
		Rand:    object.Big(rnd),
		Chain:   object.Big(Chain(object.FromUint64(0), entries...)),
		Com:     object.Big(com.Commit()),
		Key:     object.Big(entries[0].Key()),
	}
	for i := range entries {
		assignment.Entries[i] = entries[i].Assign()
	}
	require.NoError(t, test.IsSolved(circuit, assignment, ecc.BN254.ScalarField()))
}

func TestChain_OrderSensitive(t *testing.T) {
	a := newEntry(t, 0, false, 0)
	b := newEntry(t, 1, false, 0)
	zero := object.FromUint64(0)
	ab := Chain(zero, a, b)
	ba := Chain(zero, b, a)
	require.False(t, ab.Equal(&ba))
}

func TestEntry_ExpiredAt(t *testing.T) {
	e := newEntry(t, 0, true, 5)
	require.False(t, e.ExpiredAt(5))
	require.True(t, e.ExpiredAt(6))

	never := newEntry(t, 0, false, 5)
	require.False(t, never.ExpiredAt(100))
}

func TestBook_EpochLifecycle(t *testing.T) {
	var b Book
	tickets := []CallbackCom{
		{Entry: newEntry(t, 0, false, 0)},
		{Entry: newEntry(t, 1, false, 0)},
		{Entry: newEntry(t, 2, false, 0)},
	}
	for _, c := range tickets {
		b.Register(c)
	}
	require.Equal(t, 3, b.Remaining())

	batch := b.Peek(2)
	require.Len(t, batch, 2)
	b.Consume(2, batch[1:])
	require.Equal(t, 1, b.Remaining())

	last := b.Peek(2)
	require.Len(t, last, 1)
	b.Consume(1, nil)
	require.Equal(t, 0, b.Remaining())

	b.CloseEpoch()
	require.Len(t, b.Pending, 1)
	require.Equal(t, 0, b.Cursor)
	require.Equal(t, tickets[1].Entry.MethodID, b.Pending[0].Entry.MethodID)

	clone := b.Clone()
	clone.Register(tickets[0])
	require.Len(t, b.Pending, 1, "克隆不应影响原票据簿")
}
