package storage

import (
	"context"

	"go.uber.org/fx"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// ModuleParams 存储模块依赖
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    log.Logger                    `optional:"true"`
	Options   *storageconfig.StorageOptions `optional:"true"`
}

// Module 返回存储模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStore),
	)
}

// ProvideStore 创建存储并在应用停止时关闭
func ProvideStore(params ModuleParams) (storage.KVStore, error) {
	var logger log.Logger
	if params.Logger != nil {
		logger = params.Logger.With("module", "storage")
	}
	store, err := New(params.Options, logger)
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}
