package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/fold"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/scan"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
)

// ============================================================================
//                                交互批准
// ============================================================================

// checkTickets 票据检查：与提交的票据承诺逐一对应、由服务私钥派生、
// 没有在本提交或已批准的提交中出现过、从未被调用
//
// 返回票据的账本键，供互斥区内占位使用。
func (s *Service) checkTickets(ctx context.Context, em *interaction.ExecutedMethod) ([]fr.Element, error) {
	if len(em.CbTikList) != len(em.CbComList) {
		return nil, fmt.Errorf("%w: %d tickets for %d commitments", ErrTicketMismatch, len(em.CbTikList), len(em.CbComList))
	}
	keys, err := ticketKeys(em)
	if err != nil {
		return nil, err
	}
	for i, tr := range em.CbTikList {
		if tr.Ticket.Commit() != em.CbComList[i] {
			return nil, fmt.Errorf("%w: index %d", ErrTicketMismatch, i)
		}
		if _, err := s.rerandFor(tr); err != nil {
			if errors.Is(err, ErrForeignTicket) {
				return nil, fmt.Errorf("%w: index %d", err, i)
			}
			return nil, fmt.Errorf("%w: index %d: %v", ErrForeignTicket, i, err)
		}
		seen, err := s.issued(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateTicket, i)
		}
		fresh, err := s.cbul.HasNeverReceivedTik(ctx, tr.Ticket.Entry.Tik)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return nil, fmt.Errorf("%w: index %d", ErrTicketCalled, i)
		}
	}
	return keys, nil
}

// ApproveInteraction 检查票据并验证交互提交，不修改账本
//
// 票据或证明不通过返回 (false, nil)；err 只表示读取账本失败。
func (s *Service) ApproveInteraction(ctx context.Context, em *interaction.ExecutedMethod, args []fr.Element, vk groth16.VerifyingKey) (bool, error) {
	if _, err := s.checkTickets(ctx, em); err != nil {
		if isLedgerReadError(err) {
			return false, err
		}
		s.reject("ticket", err)
		return false, nil
	}
	ok, err := bulletin.VerifyInteraction(ctx, s.obul, s.verifier, em.Submission(args, vk))
	if err != nil {
		return false, err
	}
	if !ok {
		s.reject("proof", nil)
	}
	return ok, nil
}

// ApproveInteractionAndStore 批准交互、追加到对象账本，并在同一互斥区内写入交互日志
//
// 票据占位与追加在同一互斥区内完成，并发提交同一票据时只有一个被接受。
// 返回 *bulletin.BulError；拒绝时账本与交互日志都不变。
func (s *Service) ApproveInteractionAndStore(ctx context.Context, em *interaction.ExecutedMethod, args []fr.Element, vk groth16.VerifyingKey) error {
	keys, err := s.checkTickets(ctx, em)
	if err != nil {
		if isLedgerReadError(err) {
			return bulletin.AppendError(err)
		}
		s.reject("ticket", err)
		return bulletin.VerifyError(err)
	}
	sub := em.Submission(args, vk)
	rec := s.newRecord(RecordInteraction, em.NewObject, em.OldNullifier, args, em.CbTikList, vk)
	verify := func(ctx context.Context) (bool, error) {
		ok, err := bulletin.VerifyInteraction(ctx, s.obul, s.verifier, sub)
		if err != nil || !ok {
			return false, err
		}
		if err := s.claimTickets(ctx, keys, em.NewObject); err != nil {
			return false, err
		}
		return true, nil
	}
	err = bulletin.VerifyWithAndThen(ctx, s.obul, sub, verify, func(ctx context.Context) error {
		return s.storeRecord(ctx, rec)
	})
	return s.finish(rec, err)
}

// ============================================================================
//                                扫描批准
// ============================================================================

// checkScanContext 扫描上下文检查
//
// 成员根在历史窗口内即可；非成员根必须是当前根，否则旧根之后的调用会被当作未调用。
// 声明时间不晚于当前纪元。
func (s *Service) checkScanContext(ctx context.Context, membRoots, nmembRoots []fr.Element, curTime object.Time) error {
	for _, r := range membRoots {
		known, err := s.cbul.IsKnownMembershipPub(ctx, r)
		if err != nil {
			return bulletin.AppendError(err)
		}
		if !known {
			s.reject("root", nil)
			return bulletin.VerifyError(ErrUnknownRoot)
		}
	}
	if len(nmembRoots) > 0 {
		cur, err := s.cbul.MembershipPub(ctx)
		if err != nil {
			return bulletin.AppendError(err)
		}
		for _, r := range nmembRoots {
			if r != cur {
				s.reject("root", nil)
				return bulletin.VerifyError(ErrStaleRoot)
			}
		}
	}
	if uint64(curTime) > s.clock.Epoch() {
		s.reject("time", nil)
		return bulletin.VerifyError(fmt.Errorf("%w: %d > %d", ErrFutureTime, curTime, s.clock.Epoch()))
	}
	return nil
}

// ApproveScan 批准一次批量扫描并追加到对象账本
//
// 扫描不签发票据；公开参数为 pub.Args()。
func ApproveScan[D user.UserData](ctx context.Context, s *Service, em *interaction.ExecutedMethod, pub *scan.PubScanArgs[D], vk groth16.VerifyingKey) error {
	if len(em.CbComList) != 0 || len(em.CbTikList) != 0 {
		s.reject("ticket", ErrUnexpectedTickets)
		return bulletin.VerifyError(ErrUnexpectedTickets)
	}
	if err := s.checkScanContext(ctx, pub.MembRoots(), pub.NmembRoots(), pub.CurTime); err != nil {
		return err
	}
	args := pub.Args()
	rec := s.newRecord(RecordScan, em.NewObject, em.OldNullifier, args, nil, vk)
	err := bulletin.VerifyInteractAndThen(ctx, s.obul, s.verifier, em.Submission(args, vk), func(ctx context.Context) error {
		return s.storeRecord(ctx, rec)
	})
	return s.finish(rec, err)
}

// ApproveFoldedScan 验证折叠扫描的最终证明并追加到对象账本
//
// 步进电路由 fp 中的根重建，与证明方共享同一个 CircuitManager 才能得到相同的验证密钥。
func ApproveFoldedScan[D user.UserData](ctx context.Context, s *Service, name string, methods []interaction.Callback[D], fp *fold.FinalProof) error {
	if s.cm == nil {
		return fmt.Errorf("%w: circuit manager", ErrMissingDependency)
	}
	if fp == nil {
		return bulletin.VerifyError(fold.ErrNoSteps)
	}
	if err := s.checkScanContext(ctx, nil, []fr.Element{fp.CbRoot}, fp.CurTime); err != nil {
		return err
	}

	fs := &fold.FoldingScan[D]{
		Name:      name,
		Methods:   methods,
		ConstMemb: fp.ObjRoot,
		CbMemb:    fp.CbRoot,
		CbNmemb:   fp.CbRoot,
		ObjDepth:  s.objDepth,
		CbDepth:   s.cbDepth,
	}
	eng, err := fold.NewSequentialEngine[fold.FoldInputVar](ctx, fs, s.cm, zkproof.NewProver(s.logger, nil), s.verifier, nil, s.logger)
	if err != nil {
		return fmt.Errorf("构造折叠验证引擎失败: %w", err)
	}
	bk, err := fold.BindingKeys[D](ctx, s.cm)
	if err != nil {
		return fmt.Errorf("构造绑定电路失败: %w", err)
	}

	sub := &bulletin.ObjectSubmission{Object: fp.NewCom, OldNul: fp.OldNul, MembPub: fp.ObjRoot}
	rec := s.newRecord(RecordFoldedScan, fp.NewCom, fp.OldNul, nil, nil, bk.VK)
	verify := func(ctx context.Context) (bool, error) {
		fresh, err := s.obul.HasNeverReceivedNul(ctx, fp.OldNul)
		if err != nil || !fresh {
			return false, err
		}
		known, err := s.obul.IsKnownMembershipPub(ctx, fp.ObjRoot)
		if err != nil || !known {
			return false, err
		}
		if err := fold.VerifyFinal(eng, s.verifier, bk.VK, fp); err != nil {
			if s.logger != nil {
				s.logger.Debugf("折叠证明验证失败: binding_vk=%s, err=%v", rec.VK, err)
			}
			return false, bulletin.VerifyError(err)
		}
		return true, nil
	}
	err = bulletin.VerifyWithAndThen(ctx, s.obul, sub, verify, func(ctx context.Context) error {
		return s.storeRecord(ctx, rec)
	})
	return s.finish(rec, err)
}

// ============================================================================
//                                内部工具
// ============================================================================

// finish 统一记录组合操作的结果并发布批准事件
func (s *Service) finish(rec *InteractionRecord, err error) error {
	switch {
	case err == nil:
	case bulletin.IsVerifyError(err):
		reason := string(rec.Kind)
		if zkproof.IsVerificationError(err) {
			reason = "proof"
		}
		s.reject(reason, err)
		return err
	default:
		s.metrics.AppendFailed(metricsLabel)
		if s.logger != nil {
			s.logger.Errorf("提交存储失败: kind=%s, err=%v", rec.Kind, err)
		}
		return err
	}
	if s.logger != nil {
		s.logger.Infof("提交已批准: kind=%s, id=%s, tickets=%d, vk=%.16s", rec.Kind, rec.ID, len(rec.Tickets), rec.VK)
	}
	if s.bus != nil {
		s.bus.Publish(event.EventTypeInteractionApproved, InteractionApprovedEvent{
			ID: rec.ID, Kind: rec.Kind, NewObject: rec.NewObject, Tickets: len(rec.Tickets),
		})
	}
	return nil
}

func (s *Service) reject(reason string, err error) {
	s.metrics.Rejected(metricsLabel, reason)
	if s.logger != nil && err != nil {
		s.logger.Debugf("提交被拒绝: reason=%s, err=%v", reason, err)
	}
}

// isLedgerReadError 票据检查中的账本读取错误（区别于检查不通过）
func isLedgerReadError(err error) bool {
	return !errors.Is(err, ErrForeignTicket) && !errors.Is(err, ErrTicketMismatch) &&
		!errors.Is(err, ErrTicketCalled) && !errors.Is(err, ErrDuplicateTicket)
}
