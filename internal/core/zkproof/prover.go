package zkproof

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// Prover Groth16 证明生成器
type Prover struct {
	logger  log.Logger
	metrics *metrics.ProofMetrics
}

// NewProver 创建证明生成器；logger 与 m 均可为 nil
func NewProver(logger log.Logger, m *metrics.ProofMetrics) *Prover {
	return &Prover{logger: logger, metrics: m}
}

// Prove 对完整赋值生成证明，返回序列化的证明字节
func (p *Prover) Prove(ctx context.Context, keys *Keys, assignment frontend.Circuit) ([]byte, error) {
	if keys == nil {
		return nil, ErrCircuitManagerNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	w, err := frontend.NewWitness(assignment, Curve.ScalarField())
	if err != nil {
		return nil, WrapInvalidWitnessError(keys.ID, err.Error())
	}

	proof, err := groth16.Prove(keys.CCS, keys.PK, w)
	if err != nil {
		return nil, WrapProofGenerationFailedError(keys.ID, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("序列化证明失败: %w", err)
	}

	elapsed := time.Since(start)
	if p != nil {
		p.metrics.ObserveProve(keys.ID, elapsed)
		if p.logger != nil {
			p.logger.Debugf("ZK证明生成完成: circuit=%s, 耗时=%v, 大小=%d字节", keys.ID, elapsed, buf.Len())
		}
	}
	return buf.Bytes(), nil
}

// PublicInputs 从赋值中提取公开输入向量，顺序与电路字段声明顺序一致
func PublicInputs(assignment frontend.Circuit) ([]fr.Element, error) {
	w, err := frontend.NewWitness(assignment, Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("提取公开输入失败: %w", err)
	}
	vec, ok := w.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("公开输入向量类型错误: %T", w.Vector())
	}
	return []fr.Element(vec), nil
}
