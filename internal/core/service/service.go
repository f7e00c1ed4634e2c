// Package service 实现服务方：批准交互与扫描、签发加入授权、调用回调票据。
//
// 🏗️ **职责划分**：
// - 证明与成员根的检查交给 bulletin 的组合操作，服务只补充票据相关的检查
// - 交互日志、事件与指标都是可选依赖
// - 调用发布遇到存储失败时按指数退避重试，验证失败从不重试
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	infraclock "github.com/weisyn/zkcallback/internal/core/infrastructure/clock"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// metricsLabel 服务在账本指标中的标签
const metricsLabel = "service"

// Service 服务方
//
// ⚠️ 服务私钥只用于重随机化与签名，从不离开本进程。
type Service struct {
	sk       *tikcrypto.SigningKey
	obul     bulletin.ObjectBulletin
	cbul     bulletin.CallbackBulletin
	verifier zkproof.Verifier
	cm       *zkproof.CircuitManager
	objDepth int
	cbDepth  int

	logger  log.Logger
	metrics *metrics.LedgerMetrics
	bus     event.EventBus
	store   storage.KVStore
	clock   clock.Clock
	tickets *issuedTickets

	retries   uint64
	retryBase time.Duration
	closers   []io.Closer
}

// New 创建服务
//
// 签名私钥、两个账本与验证器是必需的；缺少多个依赖时一次性全部报告。
func New(opts ...Option) (*Service, error) {
	s := &Service{
		retries:   defaultPublishRetries,
		retryBase: defaultPublishRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}

	var result *multierror.Error
	if s.sk == nil {
		result = multierror.Append(result, fmt.Errorf("%w: signing key", ErrMissingDependency))
	}
	if s.obul == nil {
		result = multierror.Append(result, fmt.Errorf("%w: object bulletin", ErrMissingDependency))
	}
	if s.cbul == nil {
		result = multierror.Append(result, fmt.Errorf("%w: callback bulletin", ErrMissingDependency))
	}
	if s.verifier == nil {
		result = multierror.Append(result, fmt.Errorf("%w: verifier", ErrMissingDependency))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	if s.clock == nil {
		s.clock = infraclock.NewSystemClock(time.Unix(0, 0), time.Second)
	}
	s.tickets = newIssuedTickets(s.store)
	if s.retryBase <= 0 {
		s.retryBase = defaultPublishRetryBase
	}
	if s.logger != nil {
		s.logger = s.logger.With("module", "service")
	}
	return s, nil
}

// PublicKey 服务公钥，交互方用它签发票据
func (s *Service) PublicKey() tikcrypto.TicketKey {
	return s.sk.Public()
}

// Close 关闭由服务持有的资源
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.WaitAsync()
	}
	var result *multierror.Error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}

// ============================================================================
//                                票据调用
// ============================================================================

// CalledTicket 一次回调调用，发布到回调账本的三元组
type CalledTicket struct {
	Tik tikcrypto.TicketKey `json:"tik"`
	Ct  fr.Element          `json:"ct"`
	Sig []byte              `json:"sig"`
}

// rerandFor 重随机化服务私钥并确认得到票据声明的公钥
func (s *Service) rerandFor(tr interaction.TicketRand) (*tikcrypto.SigningKey, error) {
	rsk, err := s.sk.Rerand(tr.Rand)
	if err != nil {
		return nil, err
	}
	if !rsk.Public().Equal(tr.Ticket.Entry.Tik) {
		return nil, ErrForeignTicket
	}
	return rsk, nil
}

// Call 用票据的一次一密密钥加密参数，并以重随机化私钥签名
func (s *Service) Call(tr interaction.TicketRand, arg fr.Element) (*CalledTicket, error) {
	rsk, err := s.rerandFor(tr)
	if err != nil {
		return nil, err
	}
	ct, sig, err := tikcrypto.EncryptAndSign(arg, tr.Ticket.Entry.EncKey, rsk)
	if err != nil {
		return nil, fmt.Errorf("加密签名回调参数失败: %w", err)
	}
	return &CalledTicket{Tik: tr.Ticket.Entry.Tik, Ct: ct, Sig: sig}, nil
}

// CallAndPublish 调用票据并发布到回调账本
//
// 🔄 存储失败（AppendError）按指数退避重试，最多 retries 次；
// 验证失败（VerifyError，含重复调用）立即返回。
func (s *Service) CallAndPublish(ctx context.Context, tr interaction.TicketRand, arg fr.Element) (*CalledTicket, error) {
	called, err := s.Call(tr, arg)
	if err != nil {
		return nil, err
	}

	backoff, err := retry.NewExponential(s.retryBase)
	if err != nil {
		return nil, err
	}
	attempt := 0
	err = retry.Do(ctx, retry.WithMaxRetries(s.retries, backoff), func(ctx context.Context) error {
		attempt++
		err := bulletin.VerifyCallAndAppend(ctx, s.cbul, called.Tik, called.Ct, called.Sig)
		if bulletin.IsAppendError(err) {
			if s.logger != nil {
				s.logger.Warnf("发布回调调用失败，准备重试: attempt=%d, err=%v", attempt, err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if bulletin.IsVerifyError(err) {
			s.metrics.Rejected(metricsLabel, "call")
		} else {
			s.metrics.AppendFailed(metricsLabel)
		}
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debugf("回调已发布: method=%d, attempts=%d", tr.Ticket.Entry.MethodID, attempt)
	}
	return called, nil
}

// ============================================================================
//                                加入授权
// ============================================================================

// JoinApprovedEvent 加入授权事件负载
type JoinApprovedEvent struct {
	Com   object.Com
	Epoch uint64
}

// ApproveJoin 对新承诺签名，作为 bulletin.SignedJoins 的授权数据
func (s *Service) ApproveJoin(ctx context.Context, com object.Com) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.sk.Sign(com)
	if err != nil {
		return nil, fmt.Errorf("签名加入承诺失败: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(event.EventTypeJoinApproved, JoinApprovedEvent{Com: com, Epoch: s.clock.Epoch()})
	}
	return sig, nil
}
