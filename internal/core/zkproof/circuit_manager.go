package zkproof

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// Curve 协议使用的曲线
const Curve = ecc.BN254

// DefaultCacheSize 默认缓存的电路数量
const DefaultCacheSize = 32

var silenceOnce sync.Once

// SilenceGnark 关闭 gnark 自带的 zerolog 输出
//
// gnark 在编译与证明时输出大量调试信息，会污染协议日志。
func SilenceGnark() {
	silenceOnce.Do(func() {
		gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	})
}

// Keys 一个电路的编译结果与 Groth16 密钥对
type Keys struct {
	ID  string
	CCS constraint.ConstraintSystem
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
}

// NbConstraints 约束数量
func (k *Keys) NbConstraints() int {
	return k.CCS.GetNbConstraints()
}

// NbPublic 公开输入数量（不含常数 1）
func (k *Keys) NbPublic() int {
	return k.VK.NbPublicWitness()
}

// CircuitManager 电路管理器
//
// 🎯 **专门职责**：编译电路并执行可信设置，按电路ID缓存结果
// ⚠️ 电路ID必须唯一确定电路形状（参数、深度、批宽），否则会命中错误的密钥
type CircuitManager struct {
	logger log.Logger

	mu    sync.Mutex // 串行化编译与设置
	cache *lru.Cache[string, *Keys]
}

// NewCircuitManager 创建电路管理器
func NewCircuitManager(logger log.Logger, size int) (*CircuitManager, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Keys](size)
	if err != nil {
		return nil, fmt.Errorf("创建电路缓存失败: %w", err)
	}
	SilenceGnark()
	return &CircuitManager{logger: logger, cache: cache}, nil
}

// Get 返回已缓存的密钥
func (cm *CircuitManager) Get(id string) (*Keys, bool) {
	if cm == nil {
		return nil, false
	}
	return cm.cache.Get(id)
}

// Setup 编译电路并生成密钥；同一ID只执行一次（直到被缓存淘汰）
func (cm *CircuitManager) Setup(ctx context.Context, id string, circuit frontend.Circuit) (*Keys, error) {
	if cm == nil {
		return nil, ErrCircuitManagerNotInitialized
	}
	if keys, ok := cm.cache.Get(id); ok {
		return keys, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if keys, ok := cm.cache.Get(id); ok {
		return keys, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ccs, err := Compile(circuit)
	if err != nil {
		return nil, WrapCircuitCompilationFailedError(id, err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, WrapSetupFailedError(id, err)
	}

	keys := &Keys{ID: id, CCS: ccs, PK: pk, VK: vk}
	cm.cache.Add(id, keys)
	if cm.logger != nil {
		cm.logger.Debugf("电路设置完成: id=%s, constraints=%d, 耗时=%v", id, ccs.GetNbConstraints(), time.Since(start))
	}
	return keys, nil
}

// Len 缓存中的电路数量
func (cm *CircuitManager) Len() int {
	return cm.cache.Len()
}

// Compile 将电路编译为 R1CS
//
// 允许未约束的输入：交互可以声明谓词不使用的参数，不检查成员时对象根也不参与约束。
func Compile(circuit frontend.Circuit) (constraint.ConstraintSystem, error) {
	SilenceGnark()
	return frontend.Compile(Curve.ScalarField(), r1cs.NewBuilder, circuit, frontend.IgnoreUnconstrainedInputs())
}
