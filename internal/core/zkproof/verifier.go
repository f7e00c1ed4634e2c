package zkproof

import (
	"bytes"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// Verifier 证明验证接口
type Verifier interface {
	// Verify 验证证明；验证失败返回 IsVerificationError 为真的错误
	Verify(vk groth16.VerifyingKey, proof []byte, public []fr.Element) error
}

// Groth16Verifier Groth16 验证器
type Groth16Verifier struct {
	logger  log.Logger
	metrics *metrics.ProofMetrics
}

var _ Verifier = (*Groth16Verifier)(nil)

// NewVerifier 创建验证器；logger 与 m 均可为 nil
func NewVerifier(logger log.Logger, m *metrics.ProofMetrics) *Groth16Verifier {
	return &Groth16Verifier{logger: logger, metrics: m}
}

// Verify 实现 Verifier
func (v *Groth16Verifier) Verify(vk groth16.VerifyingKey, proof []byte, public []fr.Element) error {
	if vk == nil {
		return WrapInvalidPublicInputsError("缺少验证密钥")
	}
	if n := vk.NbPublicWitness(); n != len(public) {
		return WrapInvalidPublicInputsError(fmt.Sprintf("公开输入数量不匹配: 期望=%d, 实际=%d", n, len(public)))
	}

	start := time.Now()
	p := groth16.NewProof(Curve)
	if _, err := p.ReadFrom(bytes.NewReader(proof)); err != nil {
		v.metrics.ObserveVerify(time.Since(start), false)
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	pubW, err := NewPublicWitness(public)
	if err != nil {
		return WrapInvalidPublicInputsError(err.Error())
	}

	err = groth16.Verify(p, vk, pubW)
	v.metrics.ObserveVerify(time.Since(start), err == nil)
	if err != nil {
		if v.logger != nil {
			v.logger.Debugf("证明验证失败: %v", err)
		}
		return WrapProofVerificationFailedError(err)
	}
	return nil
}

// NewPublicWitness 由公开输入构造 gnark 公开 witness
func NewPublicWitness(public []fr.Element) (witness.Witness, error) {
	w, err := witness.New(Curve.ScalarField())
	if err != nil {
		return nil, err
	}
	values := make(chan any, len(public))
	for i := range public {
		values <- public[i]
	}
	close(values)
	if err := w.Fill(len(public), 0, values); err != nil {
		return nil, fmt.Errorf("填充公开输入失败: %w", err)
	}
	return w, nil
}

// VKFingerprint 验证密钥指纹（blake2b-256），用于日志与密钥比对
func VKFingerprint(vk groth16.VerifyingKey) ([32]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return [32]byte{}, fmt.Errorf("序列化验证密钥失败: %w", err)
	}
	return blake2b.Sum256(buf.Bytes()), nil
}
