package zkproof

import (
	"context"
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
)

// squareCircuit 证明知道 X 使 X*X == Y
type squareCircuit struct {
	X frontend.Variable
	Y frontend.Variable `gnark:",public"`
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.X), c.Y)
	return nil
}

func setupSquare(t *testing.T) (*CircuitManager, *Keys) {
	t.Helper()
	cm, err := NewCircuitManager(nil, 4)
	require.NoError(t, err)
	keys, err := cm.Setup(context.Background(), "square", &squareCircuit{})
	require.NoError(t, err)
	return cm, keys
}

func TestCircuitManager_CachesByID(t *testing.T) {
	cm, keys := setupSquare(t)
	require.Equal(t, 1, keys.NbPublic())
	require.Positive(t, keys.NbConstraints())

	again, err := cm.Setup(context.Background(), "square", &squareCircuit{})
	require.NoError(t, err)
	require.Same(t, keys, again)
	require.Equal(t, 1, cm.Len())

	got, ok := cm.Get("square")
	require.True(t, ok)
	require.Same(t, keys, got)
}

func TestCircuitManager_CanceledContext(t *testing.T) {
	cm, err := NewCircuitManager(nil, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cm.Setup(ctx, "square", &squareCircuit{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCircuitManager_NilReceiver(t *testing.T) {
	var cm *CircuitManager
	_, err := cm.Setup(context.Background(), "x", &squareCircuit{})
	require.ErrorIs(t, err, ErrCircuitManagerNotInitialized)
}

func TestProveVerify_RoundTrip(t *testing.T) {
	_, keys := setupSquare(t)
	reg := prometheus.NewRegistry()
	pm := metrics.NewProofMetrics(reg)
	prover := NewProver(nil, pm)
	verifier := NewVerifier(nil, pm)

	assignment := &squareCircuit{X: 3, Y: 9}
	proof, err := prover.Prove(context.Background(), keys, assignment)
	require.NoError(t, err)

	public, err := PublicInputs(assignment)
	require.NoError(t, err)
	require.Len(t, public, 1)
	var nine fr.Element
	nine.SetUint64(9)
	require.True(t, public[0].Equal(&nine))

	require.NoError(t, verifier.Verify(keys.VK, proof, public))

	var ten fr.Element
	ten.SetUint64(10)
	err = verifier.Verify(keys.VK, proof, []fr.Element{ten})
	require.Error(t, err)
	require.True(t, IsVerificationError(err))
	require.ErrorIs(t, err, ErrProofVerificationFailed)
}

func TestVerify_RejectsMalformedInputs(t *testing.T) {
	_, keys := setupSquare(t)
	verifier := NewVerifier(nil, nil)

	proof, err := NewProver(nil, nil).Prove(context.Background(), keys, &squareCircuit{X: 2, Y: 4})
	require.NoError(t, err)

	err = verifier.Verify(keys.VK, proof, nil)
	require.ErrorIs(t, err, ErrInvalidPublicInputs)

	var four fr.Element
	four.SetUint64(4)
	err = verifier.Verify(keys.VK, []byte{1, 2, 3}, []fr.Element{four})
	require.ErrorIs(t, err, ErrInvalidProof)
	require.True(t, IsVerificationError(err))
}

func TestProve_UnsatisfiedWitness(t *testing.T) {
	_, keys := setupSquare(t)
	_, err := NewProver(nil, nil).Prove(context.Background(), keys, &squareCircuit{X: 3, Y: 10})
	require.ErrorIs(t, err, ErrProofGenerationFailed)
	require.False(t, IsVerificationError(err))
}

func TestVKFingerprint_Stable(t *testing.T) {
	_, keys := setupSquare(t)
	a, err := VKFingerprint(keys.VK)
	require.NoError(t, err)
	b, err := VKFingerprint(keys.VK)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestIsVerificationError(t *testing.T) {
	require.False(t, IsVerificationError(errors.New("io")))
	require.False(t, IsVerificationError(WrapSetupFailedError("c", errors.New("x"))))
	require.True(t, IsVerificationError(WrapInvalidPublicInputsError("bad")))
}
