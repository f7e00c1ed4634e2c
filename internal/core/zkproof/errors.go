// Package zkproof provides error definitions for zero-knowledge proof operations.
package zkproof

import (
	"errors"
	"fmt"
)

// ============================================================================
//                            零知识证明错误定义
// ============================================================================

var (
	// ErrCircuitCompilationFailed 电路编译失败错误
	ErrCircuitCompilationFailed = errors.New("circuit compilation failed")

	// ErrSetupFailed 可信设置失败错误
	ErrSetupFailed = errors.New("trusted setup failed")

	// ErrProofGenerationFailed 证明生成失败错误
	ErrProofGenerationFailed = errors.New("proof generation failed")

	// ErrProofVerificationFailed 证明验证失败错误
	ErrProofVerificationFailed = errors.New("proof verification failed")

	// ErrInvalidWitness 无效见证错误
	ErrInvalidWitness = errors.New("invalid witness")

	// ErrInvalidPublicInputs 无效公共输入错误
	ErrInvalidPublicInputs = errors.New("invalid public inputs")

	// ErrInvalidProof 无效证明错误
	ErrInvalidProof = errors.New("invalid proof")

	// ErrCircuitManagerNotInitialized 电路管理器未初始化错误
	ErrCircuitManagerNotInitialized = errors.New("circuit manager not initialized")
)

// ============================================================================
//                               错误包装函数
// ============================================================================

// WrapCircuitCompilationFailedError 包装电路编译失败错误
func WrapCircuitCompilationFailedError(circuitID string, err error) error {
	return fmt.Errorf("%w: circuitID=%s, cause=%v", ErrCircuitCompilationFailed, circuitID, err)
}

// WrapSetupFailedError 包装可信设置失败错误
func WrapSetupFailedError(circuitID string, err error) error {
	return fmt.Errorf("%w: circuitID=%s, cause=%v", ErrSetupFailed, circuitID, err)
}

// WrapProofGenerationFailedError 包装证明生成失败错误
func WrapProofGenerationFailedError(circuitID string, err error) error {
	return fmt.Errorf("%w: circuitID=%s, cause=%v", ErrProofGenerationFailed, circuitID, err)
}

// WrapProofVerificationFailedError 包装证明验证失败错误
func WrapProofVerificationFailedError(err error) error {
	return fmt.Errorf("%w: cause=%v", ErrProofVerificationFailed, err)
}

// WrapInvalidWitnessError 包装无效见证错误
func WrapInvalidWitnessError(circuitID, reason string) error {
	return fmt.Errorf("%w: circuitID=%s, reason=%s", ErrInvalidWitness, circuitID, reason)
}

// WrapInvalidPublicInputsError 包装无效公共输入错误
func WrapInvalidPublicInputsError(reason string) error {
	return fmt.Errorf("%w: reason=%s", ErrInvalidPublicInputs, reason)
}

// IsVerificationError 判断是否为验证类错误（证明被拒绝而非系统故障）
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrProofVerificationFailed) ||
		errors.Is(err, ErrInvalidProof) ||
		errors.Is(err, ErrInvalidPublicInputs)
}
