package user

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
)

type testData struct {
	Balance uint64
	Banned  bool
}

func (d testData) Serialize() []fr.Element {
	return []fr.Element{object.FromUint64(d.Balance), object.FromBool(d.Banned)}
}

// commitCircuit 校验电路承诺/作废符与原生一致
type commitCircuit struct {
	U   UserVar
	Com frontend.Variable `gnark:",public"`
	Nul frontend.Variable `gnark:",public"`
}

func (c *commitCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	AssertWellFormed(api, c.U)
	api.AssertIsEqual(CommitVar(h, c.U), c.Com)
	api.AssertIsEqual(NullifyVar(h, c.U), c.Nul)
	return nil
}

func randomTicket(t *testing.T) ticket.CallbackCom {
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	r, err := tikcrypto.RandomScalar(rand.Reader)
	require.NoError(t, err)
	return ticket.CallbackCom{Entry: ticket.CallbackEntry{Tik: sk.Public().Rerand(r), MethodID: 1}}
}

func TestNew_InitialState(t *testing.T) {
	u, err := New(testData{Balance: 10}, rand.Reader)
	require.NoError(t, err)
	require.True(t, u.ZK.IsIngestOver)
	require.True(t, u.ZK.CallbackHash.IsZero())
	require.Equal(t, 2, DataWidth[testData]())

	// 承诺依赖随机数
	v, err := New(testData{Balance: 10}, rand.Reader)
	require.NoError(t, err)
	c1, c2 := u.Commit(), v.Commit()
	require.False(t, c1.Equal(&c2))

	// 同一状态承诺确定
	c3 := u.Commit()
	require.True(t, c1.Equal(&c3))
}

func TestCommit_NativeMatchesCircuit(t *testing.T) {
	u, err := New(testData{Balance: 5, Banned: true}, rand.Reader)
	require.NoError(t, err)
	u.RegisterTicket(randomTicket(t))

	circuit := &commitCircuit{U: NewUserVar(DataWidth[testData]())}
	assignment := &commitCircuit{U: u.Assign(), Com: object.Big(u.Commit()), Nul: object.Big(u.Nullify())}
	require.NoError(t, test.IsSolved(circuit, assignment, ecc.BN254.ScalarField()))

	// 篡改数据后承诺不再匹配
	bad := &commitCircuit{U: u.Assign(), Com: object.Big(u.Commit()), Nul: object.Big(u.Nullify())}
	bad.U.Data[0] = 6
	require.Error(t, test.IsSolved(circuit, bad, ecc.BN254.ScalarField()))
}

func TestRegisterTicket_ClosedAndOpen(t *testing.T) {
	u, err := New(testData{}, rand.Reader)
	require.NoError(t, err)

	t1 := randomTicket(t)
	u.RegisterTicket(t1)
	want := ticket.Chain(fr.Element{}, t1.Entry)
	require.True(t, u.ZK.CallbackHash.Equal(&want))
	require.True(t, u.ZK.OldInProgressCallbackHash.Equal(&want))
	require.True(t, u.ZK.NewInProgressCallbackHash.Equal(&want))

	// 打开状态只扩展回调哈希
	u.ZK.IsIngestOver = false
	u.ZK.OldInProgressCallbackHash = fr.Element{}
	u.ZK.NewInProgressCallbackHash = fr.Element{}
	t2 := randomTicket(t)
	u.RegisterTicket(t2)
	want = ticket.Chain(want, t2.Entry)
	require.True(t, u.ZK.CallbackHash.Equal(&want))
	require.True(t, u.ZK.OldInProgressCallbackHash.IsZero())
	require.Len(t, u.Tickets.Pending, 2)
}

func TestClone_Independent(t *testing.T) {
	u, err := New(testData{Balance: 1}, rand.Reader)
	require.NoError(t, err)
	u.RegisterTicket(randomTicket(t))

	c := u.Clone()
	c.Data.Balance = 2
	c.RegisterTicket(randomTicket(t))
	require.NoError(t, c.Refresh(rand.Reader))

	require.Equal(t, uint64(1), u.Data.Balance)
	require.Len(t, u.Tickets.Pending, 1)
	n1, n2 := u.Nullify(), c.Nullify()
	require.False(t, n1.Equal(&n2))
}
