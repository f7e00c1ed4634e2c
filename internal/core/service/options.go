package service

import (
	"io"
	"time"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

const (
	defaultPublishRetries   = 3
	defaultPublishRetryBase = 50 * time.Millisecond
)

// Option 服务构造选项
type Option func(*Service)

// WithSigningKey 服务私钥（票据签发与调用签名）
func WithSigningKey(sk *tikcrypto.SigningKey) Option {
	return func(s *Service) { s.sk = sk }
}

// WithObjectBulletin 对象账本
func WithObjectBulletin(bul bulletin.ObjectBulletin) Option {
	return func(s *Service) { s.obul = bul }
}

// WithCallbackBulletin 回调账本
func WithCallbackBulletin(bul bulletin.CallbackBulletin) Option {
	return func(s *Service) { s.cbul = bul }
}

// WithVerifier 交互与扫描证明的验证器
func WithVerifier(v zkproof.Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithCircuitManager 折叠扫描验证使用的电路缓存，须与证明方共享同一套密钥
func WithCircuitManager(cm *zkproof.CircuitManager) Option {
	return func(s *Service) { s.cm = cm }
}

// WithTreeDepths 对象账本与回调账本的树深度
func WithTreeDepths(objDepth, cbDepth int) Option {
	return func(s *Service) {
		s.objDepth = objDepth
		s.cbDepth = cbDepth
	}
}

// WithLogger 日志
func WithLogger(logger log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics 拒绝与存储失败计数
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEventBus 事件总线
func WithEventBus(bus event.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithRecordStore 交互日志存储
func WithRecordStore(store storage.KVStore) Option {
	return func(s *Service) { s.store = store }
}

// WithClock 纪元时钟，应与回调账本使用同一个
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRetryPolicy 调用发布的重试次数与指数退避基数
func WithRetryPolicy(retries uint64, base time.Duration) Option {
	return func(s *Service) {
		s.retries = retries
		s.retryBase = base
	}
}

// WithCloser 由服务负责关闭的资源
func WithCloser(c io.Closer) Option {
	return func(s *Service) { s.closers = append(s.closers, c) }
}
