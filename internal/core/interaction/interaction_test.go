package interaction

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// tokens 测试用户数据：Token 为 1 表示持有通行令牌
type tokens struct {
	Token fr.Element
	Uses  fr.Element
}

func (t tokens) Serialize() []fr.Element {
	return []fr.Element{t.Token, t.Uses}
}

// useToken 持有令牌才能使用，每次使用计数加一，并注册一个撤销回调
func useToken(checkMemb bool) *Interaction[tokens] {
	return &Interaction[tokens]{
		Name: "use-token",
		Method: func(u *user.User[tokens], _, _ []fr.Element) (*user.User[tokens], error) {
			one := object.FromUint64(1)
			u.Data.Uses.Add(&u.Data.Uses, &one)
			return u, nil
		},
		Predicate: func(api frontend.API, old, next user.UserVar, _, _ []frontend.Variable) (frontend.Variable, error) {
			hasToken := api.IsZero(api.Sub(old.Data[0], 1))
			keepsToken := api.IsZero(api.Sub(next.Data[0], old.Data[0]))
			counted := api.IsZero(api.Sub(next.Data[1], api.Add(old.Data[1], 1)))
			return api.And(hasToken, api.And(keepsToken, counted)), nil
		},
		Callbacks: []Callback[tokens]{{
			MethodID:   7,
			Expirable:  true,
			Expiration: 100,
			Method: func(u *user.User[tokens], _ fr.Element) *user.User[tokens] {
				out := u.Clone()
				out.Data.Token.SetZero()
				return out
			},
			Predicate: func(api frontend.API, u user.UserVar, _ frontend.Variable) (user.UserVar, error) {
				out := u.Copy()
				out.Data[0] = 0
				return out, nil
			},
		}},
		CheckMembership: checkMemb,
	}
}

func newTokenUser(t *testing.T, token uint64) *user.User[tokens] {
	u, err := user.New(tokens{Token: object.FromUint64(token)}, rand.Reader)
	require.NoError(t, err)
	return u
}

func servicePK(t *testing.T) tikcrypto.TicketKey {
	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	return sk.Public()
}

func TestExecute_ClosedUserRegistersTicket(t *testing.T) {
	it := useToken(false)
	u := newTokenUser(t, 1)
	pk := servicePK(t)

	em, next, assignment, err := execute(rand.Reader, u, it, pk, Input{})
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(newCircuit(it, 0), assignment, ecc.BN254.ScalarField()))

	require.Len(t, em.CbTikList, 1)
	require.Len(t, em.CbComList, 1)
	tr := em.CbTikList[0]
	require.True(t, pk.Rerand(tr.Rand).Equal(tr.Ticket.Entry.Tik))
	require.Equal(t, uint64(7), tr.Ticket.Entry.MethodID)
	require.Equal(t, object.Time(100), tr.Ticket.Entry.Expiration)

	// 关闭状态：进行中哈希跟随回调哈希
	require.True(t, next.ZK.IsIngestOver)
	require.Equal(t, next.ZK.CallbackHash, next.ZK.OldInProgressCallbackHash)
	require.Equal(t, next.ZK.CallbackHash, next.ZK.NewInProgressCallbackHash)
	require.Equal(t, 1, next.Tickets.Remaining())

	// 新状态与旧状态不同，旧用户未被修改
	require.Equal(t, next.Commit(), em.NewObject)
	require.Equal(t, u.Nullify(), em.OldNullifier)
	require.NotEqual(t, u.ZK.NulSeed, next.ZK.NulSeed)
	require.True(t, u.ZK.CallbackHash.IsZero())
	require.Equal(t, 0, u.Tickets.Remaining())
	one := object.FromUint64(1)
	require.Equal(t, one, next.Data.Uses)
	require.True(t, u.Data.Uses.IsZero())
}

func TestExecute_OpenUserKeepsInProgress(t *testing.T) {
	it := useToken(false)
	u := newTokenUser(t, 1)
	u.ZK.IsIngestOver = false
	u.ZK.OldInProgressCallbackHash = object.FromUint64(11)
	u.ZK.NewInProgressCallbackHash = object.FromUint64(12)

	_, next, assignment, err := execute(rand.Reader, u, it, servicePK(t), Input{})
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(newCircuit(it, 0), assignment, ecc.BN254.ScalarField()))
	require.False(t, next.ZK.IsIngestOver)
	require.Equal(t, object.FromUint64(11), next.ZK.OldInProgressCallbackHash)
	require.Equal(t, object.FromUint64(12), next.ZK.NewInProgressCallbackHash)
	require.NotEqual(t, next.ZK.CallbackHash, next.ZK.OldInProgressCallbackHash)
}

func TestExecute_PredicateViolation(t *testing.T) {
	it := useToken(false)
	u := newTokenUser(t, 0)

	_, _, assignment, err := execute(rand.Reader, u, it, servicePK(t), Input{})
	require.NoError(t, err)
	require.Error(t, test.IsSolved(newCircuit(it, 0), assignment, ecc.BN254.ScalarField()))
}

func TestExecute_TamperedBookkeeping(t *testing.T) {
	it := useToken(false)
	u := newTokenUser(t, 1)

	_, _, assignment, err := execute(rand.Reader, u, it, servicePK(t), Input{})
	require.NoError(t, err)
	assignment.New.CallbackHash = 0
	require.Error(t, test.IsSolved(newCircuit(it, 0), assignment, ecc.BN254.ScalarField()))
}

func TestExecute_InputValidation(t *testing.T) {
	u := newTokenUser(t, 1)
	pk := servicePK(t)

	_, _, _, err := execute(rand.Reader, u, useToken(false), pk, Input{Pub: []fr.Element{{}}})
	require.ErrorIs(t, err, ErrArgCount)

	_, _, _, err = execute(rand.Reader, u, useToken(true), pk, Input{})
	require.ErrorIs(t, err, ErrMissingWitness)

	bad := useToken(false)
	bad.Predicate = nil
	_, _, _, err = execute(rand.Reader, u, bad, pk, Input{})
	require.Error(t, err)
}

func TestExecute_Membership(t *testing.T) {
	const depth = 4
	it := useToken(true)
	u := newTokenUser(t, 1)

	tree, err := object.NewMerkleTree(depth)
	require.NoError(t, err)
	_, err = tree.Append(object.FromUint64(99))
	require.NoError(t, err)
	idx, err := tree.Append(u.Commit())
	require.NoError(t, err)
	p, err := tree.Proof(idx)
	require.NoError(t, err)

	in := Input{Memb: object.MerkleWitness{Root: tree.Root(), Proof: p}}
	_, _, assignment, err := execute(rand.Reader, u, it, servicePK(t), in)
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(newCircuit(it, depth), assignment, ecc.BN254.ScalarField()))

	// 旧承诺不在给定根下
	in.Memb.Root = object.FromUint64(5)
	_, _, assignment, err = execute(rand.Reader, u, it, servicePK(t), in)
	require.NoError(t, err)
	require.Error(t, test.IsSolved(newCircuit(it, depth), assignment, ecc.BN254.ScalarField()))
}

func TestCircuitID_DependsOnShape(t *testing.T) {
	a := CircuitID(useToken(false), 8)
	b := CircuitID(useToken(true), 8)
	c := CircuitID(useToken(true), 16)
	require.NotEqual(t, a, b)
	require.NotEqual(t, b, c)

	it := useToken(false)
	it.Callbacks[0].Expiration = 200
	require.NotEqual(t, a, CircuitID(it, 8))
}

func TestInteract_Groth16RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	ctx := context.Background()
	it := useToken(false)
	cm, err := zkproof.NewCircuitManager(nil, 4)
	require.NoError(t, err)
	keys, err := GenerateKeys(ctx, cm, it, 0)
	require.NoError(t, err)
	require.Equal(t, 4, keys.NbPublic())

	u := newTokenUser(t, 1)
	em, next, err := Interact(ctx, rand.Reader, zkproof.NewProver(nil, nil), keys, u, it, servicePK(t), Input{})
	require.NoError(t, err)
	require.NotEmpty(t, em.Proof)
	require.Equal(t, next.Commit(), em.NewObject)

	v := zkproof.NewVerifier(nil, nil)
	require.NoError(t, v.Verify(keys.VK, em.Proof, em.PublicInputs(nil)))

	sub := em.Submission(nil, keys.VK)
	require.Equal(t, em.PublicInputs(nil), sub.PublicInputs())

	tampered := em.PublicInputs(nil)
	tampered[0] = object.FromUint64(1)
	require.Error(t, v.Verify(keys.VK, em.Proof, tampered))
}
