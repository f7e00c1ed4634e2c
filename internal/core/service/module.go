package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/weisyn/zkcallback/internal/config/protocol"
	"github.com/weisyn/zkcallback/internal/core/bulletin"
	infraclock "github.com/weisyn/zkcallback/internal/core/infrastructure/clock"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// ModuleParams 服务模块依赖
type ModuleParams struct {
	fx.In

	Lifecycle     fx.Lifecycle
	Protocol      *protocol.ProtocolOptions
	Store         storage.KVStore
	Logger        log.Logger             `optional:"true"`
	Bus           event.EventBus         `optional:"true"`
	LedgerMetrics *metrics.LedgerMetrics `optional:"true"`
	ProofMetrics  *metrics.ProofMetrics  `optional:"true"`
}

// ModuleOutput 服务模块输出
//
// 账本与电路缓存同时输出，供同进程内的客户端（演示命令、测试）使用。
type ModuleOutput struct {
	fx.Out

	Service        *Service
	SigningKey     *tikcrypto.SigningKey
	ObjectLedger   *bulletin.ObjectLedger
	CallbackLedger *bulletin.CallbackLedger
	CircuitManager *zkproof.CircuitManager
	Prover         *zkproof.Prover
	Verifier       zkproof.Verifier
	Clock          clock.Clock
}

// Module 返回服务模块
func Module() fx.Option {
	return fx.Module("service",
		fx.Provide(ProvideService),
	)
}

// ProvideService 装配账本、证明组件与服务
func ProvideService(params ModuleParams) (ModuleOutput, error) {
	opts := params.Protocol
	if opts == nil {
		opts = protocol.DefaultOptions()
	}
	logger := params.Logger

	sk, err := LoadOrCreateSigningKey(opts.SigningKeyFile)
	if err != nil {
		return ModuleOutput{}, err
	}
	clk := infraclock.NewSystemClock(time.Unix(0, 0), opts.EpochLength)

	ctx := context.Background()
	obul, err := bulletin.NewObjectLedger(ctx, params.Store, bulletin.Options{
		Depth:       opts.ObjectTreeDepth,
		RootHistory: opts.RootHistory,
		Logger:      withModule(logger, "bulletin.object"),
		Metrics:     params.LedgerMetrics,
		Bus:         params.Bus,
		Authorizer:  bulletin.SignedJoins{PK: sk.Public()},
	})
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("创建对象账本失败: %w", err)
	}
	cbul, err := bulletin.NewCallbackLedger(ctx, params.Store, bulletin.Options{
		Depth:       opts.CallbackTreeDepth,
		RootHistory: opts.RootHistory,
		Logger:      withModule(logger, "bulletin.callback"),
		Metrics:     params.LedgerMetrics,
		Bus:         params.Bus,
		Clock:       clk,
	})
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("创建回调账本失败: %w", err)
	}

	zkproof.SilenceGnark()
	cm, err := zkproof.NewCircuitManager(withModule(logger, "zkproof"), opts.CircuitCacheSize)
	if err != nil {
		return ModuleOutput{}, err
	}
	prover := zkproof.NewProver(withModule(logger, "zkproof"), params.ProofMetrics)
	verifier := zkproof.NewVerifier(withModule(logger, "zkproof"), params.ProofMetrics)

	svc, err := New(
		WithSigningKey(sk),
		WithObjectBulletin(obul),
		WithCallbackBulletin(cbul),
		WithVerifier(verifier),
		WithCircuitManager(cm),
		WithTreeDepths(opts.ObjectTreeDepth, opts.CallbackTreeDepth),
		WithLogger(logger),
		WithMetrics(params.LedgerMetrics),
		WithEventBus(params.Bus),
		WithRecordStore(params.Store),
		WithClock(clk),
		WithRetryPolicy(opts.PublishRetries, opts.PublishRetryBase),
	)
	if err != nil {
		return ModuleOutput{}, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return svc.Close()
		},
	})

	return ModuleOutput{
		Service:        svc,
		SigningKey:     sk,
		ObjectLedger:   obul,
		CallbackLedger: cbul,
		CircuitManager: cm,
		Prover:         prover,
		Verifier:       verifier,
		Clock:          clk,
	}, nil
}

// LoadOrCreateSigningKey 从十六进制密钥文件加载服务私钥
//
// path 为空时生成临时密钥；文件不存在时生成并以 0600 权限写入。
func LoadOrCreateSigningKey(path string) (*tikcrypto.SigningKey, error) {
	if path == "" {
		return tikcrypto.GenerateSigningKey(rand.Reader)
	}
	b, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
		if err != nil {
			return nil, fmt.Errorf("解析服务密钥文件失败: %w", err)
		}
		return tikcrypto.SigningKeyFromBytes(raw)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取服务密钥文件失败: %w", err)
	}

	sk, err := tikcrypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("创建密钥目录失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(sk.Bytes())), 0o600); err != nil {
		return nil, fmt.Errorf("写入服务密钥文件失败: %w", err)
	}
	return sk, nil
}

func withModule(logger log.Logger, module string) log.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("module", module)
}
