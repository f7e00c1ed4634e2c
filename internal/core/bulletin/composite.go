package bulletin

import (
	"context"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// ============================================================================
//                          组合操作（基于能力接口）
// ============================================================================

// VerifyInteraction 验证一次交互提交
//
// 🔍 **检查顺序**：
//  1. 作废符从未被接受
//  2. 成员根在根历史窗口内
//  3. Groth16 证明在公开输入 [Object, OldNul, Args..., CbComList..., MembPub] 下成立
//
// 验证不通过返回 (false, nil)；err 只表示读取账本失败。
func VerifyInteraction(ctx context.Context, bul ObjectBulletin, v zkproof.Verifier, sub *ObjectSubmission) (bool, error) {
	if sub == nil || sub.VerifyingKey == nil {
		return false, nil
	}
	fresh, err := bul.HasNeverReceivedNul(ctx, sub.OldNul)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	known, err := bul.IsKnownMembershipPub(ctx, sub.MembPub)
	if err != nil {
		return false, err
	}
	if !known {
		return false, nil
	}
	if err := v.Verify(sub.VerifyingKey, sub.Proof, sub.PublicInputs()); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyInteractAndAppend 在互斥区内验证并追加
//
// 验证失败或作废符重放返回 KindVerify；存储失败返回 KindAppend。
func VerifyInteractAndAppend(ctx context.Context, bul ObjectBulletin, v zkproof.Verifier, sub *ObjectSubmission) error {
	return VerifyInteractAndThen(ctx, bul, v, sub, nil)
}

// VerifyInteractAndThen 同 VerifyInteractAndAppend，追加成功后在同一互斥区内执行 after
//
// after 的错误按存储错误返回，此时提交已经进入账本。
func VerifyInteractAndThen(ctx context.Context, bul ObjectBulletin, v zkproof.Verifier, sub *ObjectSubmission, after func(ctx context.Context) error) error {
	return VerifyWithAndThen(ctx, bul, sub, func(ctx context.Context) (bool, error) {
		return VerifyInteraction(ctx, bul, v, sub)
	}, after)
}

// VerifyWithAndThen 在互斥区内执行 verify，通过后追加 sub 并执行 after
//
// 用于证明形式不是单个 Groth16 证明的提交（例如折叠扫描），或需要在同一互斥区内
// 追加额外检查的提交。verify 自己负责作废符与成员根检查；返回 (false, nil) 视为验证失败，
// 返回 *BulError 时保留其类别，其余错误按存储错误处理。
func VerifyWithAndThen(ctx context.Context, bul ObjectBulletin, sub *ObjectSubmission, verify func(ctx context.Context) (bool, error), after func(ctx context.Context) error) error {
	return bul.Exclusive(ctx, func(ctx context.Context) error {
		ok, err := verify(ctx)
		if err != nil {
			var be *BulError
			if errors.As(err, &be) {
				return err
			}
			return AppendError(err)
		}
		if !ok {
			return VerifyError(nil)
		}
		if err := bul.AppendValue(ctx, sub); err != nil {
			return classifyAppend(err)
		}
		if after != nil {
			if err := after(ctx); err != nil {
				return AppendError(err)
			}
		}
		return nil
	})
}

// VerifyCall 验证一次回调调用：票据未被调用过，且签名在票据公钥下成立
func VerifyCall(ctx context.Context, bul CallbackBulletin, tik tikcrypto.TicketKey, ct fr.Element, sig []byte) (bool, error) {
	fresh, err := bul.HasNeverReceivedTik(ctx, tik)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	ok, err := tik.Verify(ct, sig)
	if err != nil {
		if errors.Is(err, tikcrypto.ErrInvalidSignature) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// VerifyCallAndAppend 在互斥区内验证调用并写入回调账本
func VerifyCallAndAppend(ctx context.Context, bul CallbackBulletin, tik tikcrypto.TicketKey, ct fr.Element, sig []byte) error {
	return bul.Exclusive(ctx, func(ctx context.Context) error {
		ok, err := VerifyCall(ctx, bul, tik, ct, sig)
		if err != nil {
			return AppendError(err)
		}
		if !ok {
			return VerifyError(nil)
		}
		return classifyAppend(bul.AppendValue(ctx, tik, ct, sig))
	})
}

// AppendObjectOnly 加入：不需要证明，只经过加入授权器
func AppendObjectOnly(ctx context.Context, bul JoinableBulletin, com object.Com, pubData []byte) error {
	return bul.Exclusive(ctx, func(ctx context.Context) error {
		return classifyAppend(bul.JoinBul(ctx, com, pubData))
	})
}
