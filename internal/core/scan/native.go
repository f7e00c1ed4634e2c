package scan

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/user"
)

// ScanMethod 原生扫描状态机
//
// 返回新用户（旧用户不修改），不刷新作废符种子与承诺随机数。
// 激活槽位必须是票据簿中接下来的票据；见证必须在对应根下成立，
// 且与账本当前记录一致（账本只追加，已调用的记录不会改变）。
// 批次为空时返回未改变的副本。
func ScanMethod[D user.UserData](ctx context.Context, u *user.User[D], pub *PubScanArgs[D], priv *PrivScanArgs) (*user.User[D], error) {
	if err := priv.check(); err != nil {
		return nil, err
	}
	if err := checkMethods(pub.Methods); err != nil {
		return nil, err
	}
	w := priv.Width()
	if len(pub.MembPub) != w || len(pub.NmembPub) != w {
		return nil, ErrWidth
	}

	out := u.Clone()
	n := priv.NumActive()
	if n == 0 {
		return out, nil
	}

	pending := out.Tickets.Peek(n)
	if len(pending) != n {
		return nil, fmt.Errorf("%w: %d active, %d pending", ErrOutOfOrder, n, len(pending))
	}

	zk := out.ZK
	if zk.IsIngestOver {
		zk.OldInProgressCallbackHash = fr.Element{}
		zk.NewInProgressCallbackHash = fr.Element{}
		zk.IsIngestOver = false
	}

	var carried []ticket.CallbackCom
	for i := 0; i < n; i++ {
		t := priv.Tickets[i]
		if t.Digest() != pending[i].Entry.Digest() {
			return nil, fmt.Errorf("%w: slot %d", ErrOutOfOrder, i)
		}
		zk.OldInProgressCallbackHash = ticket.AddToChain(zk.OldInProgressCallbackHash, t)

		called, err := checkSlot(ctx, pub, priv, i)
		if err != nil {
			return nil, err
		}
		if called {
			// 晚于过期时间的调用作废
			if t.Expirable && priv.PostTimes[i] > t.Expiration {
				continue
			}
			cb, err := interaction.FindCallback(pub.Methods, t.MethodID)
			if err != nil {
				return nil, err
			}
			arg := tikcrypto.Decrypt(t.EncKey, priv.EncArgs[i])
			next := cb.Method(out.Clone(), arg)
			out.Data = next.Data
			continue
		}
		if t.ExpiredAt(pub.CurTime) {
			continue
		}
		zk.NewInProgressCallbackHash = ticket.AddToChain(zk.NewInProgressCallbackHash, t)
		carried = append(carried, pending[i])
	}

	out.Tickets.Consume(n, carried)
	if zk.OldInProgressCallbackHash == zk.CallbackHash {
		zk.CallbackHash = zk.NewInProgressCallbackHash
		zk.OldInProgressCallbackHash = zk.NewInProgressCallbackHash
		zk.IsIngestOver = true
		out.Tickets.CloseEpoch()
	}
	out.ZK = zk
	return out, nil
}

// checkSlot 校验槽位见证并返回票据是否已被调用
func checkSlot[D user.UserData](ctx context.Context, pub *PubScanArgs[D], priv *PrivScanArgs, i int) (bool, error) {
	t := priv.Tickets[i]
	key := t.Key()
	memb := &priv.MembPriv[i]
	nmemb := &priv.NmembPriv[i]

	if memb.Member && memb.Root == pub.MembPub[i] && memb.Verify(key) {
		if priv.EncArgs[i] != memb.Leaf.Ct || priv.PostTimes[i] != memb.Leaf.Time {
			return false, fmt.Errorf("%w: slot %d call record mismatch", ErrInconsistent, i)
		}
		ct, at, called, err := pub.Bulletin.Lookup(ctx, t.Tik)
		if err != nil {
			return false, err
		}
		if !called || ct != priv.EncArgs[i] || at != priv.PostTimes[i] {
			return false, fmt.Errorf("%w: slot %d not recorded", ErrInconsistent, i)
		}
		return true, nil
	}
	if !nmemb.Member && nmemb.Root == pub.NmembPub[i] && nmemb.Verify(key) {
		_, at, called, err := pub.Bulletin.Lookup(ctx, t.Tik)
		if err != nil {
			return false, err
		}
		if called {
			return false, fmt.Errorf("%w: slot %d called at %d", ErrStaleWitness, i, at)
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: slot %d has no valid witness", ErrInconsistent, i)
}
