package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// ticketPrefix 已签发票据键前缀，值为签发该票据的提交的新对象承诺
const ticketPrefix = "svc/tik/"

// issuedTickets 已批准提交中出现过的票据
//
// 🔍 占位只在其对象承诺已进入对象账本时生效：追加失败留下的占位会被重试接管。
// 未配置存储时保存在内存中。
type issuedTickets struct {
	store storage.KVStore

	mu  sync.Mutex
	mem map[fr.Element]object.Com
}

func newIssuedTickets(store storage.KVStore) *issuedTickets {
	return &issuedTickets{store: store, mem: make(map[fr.Element]object.Com)}
}

func ticketKey(key fr.Element) []byte {
	b := key.Bytes()
	return []byte(ticketPrefix + hex.EncodeToString(b[:]))
}

// owner 票据占位的对象承诺
func (t *issuedTickets) owner(ctx context.Context, key fr.Element) (object.Com, bool, error) {
	if t.store == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		com, ok := t.mem[key]
		return com, ok, nil
	}
	b, err := t.store.Get(ctx, ticketKey(key))
	if err != nil || b == nil {
		return object.Com{}, false, err
	}
	var com object.Com
	if err := com.SetBytesCanonical(b); err != nil {
		return object.Com{}, false, fmt.Errorf("解析票据记录失败: %w", err)
	}
	return com, true, nil
}

// claim 一次写入全部票据的占位
func (t *issuedTickets) claim(ctx context.Context, keys []fr.Element, com object.Com) error {
	if t.store == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, k := range keys {
			t.mem[k] = com
		}
		return nil
	}
	b := com.Bytes()
	entries := make(map[string][]byte, len(keys))
	for _, k := range keys {
		entries[string(ticketKey(k))] = b[:]
	}
	if err := t.store.SetMany(ctx, entries); err != nil {
		return fmt.Errorf("写入票据记录失败: %w", err)
	}
	return nil
}

// ticketKeys 提交中票据的账本键；同一提交内重复返回 ErrDuplicateTicket
func ticketKeys(em *interaction.ExecutedMethod) ([]fr.Element, error) {
	keys := make([]fr.Element, len(em.CbTikList))
	seen := make(map[fr.Element]int, len(em.CbTikList))
	for i, tr := range em.CbTikList {
		k := ticket.KeyOf(tr.Ticket.Entry.Tik)
		if j, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: index %d repeats index %d", ErrDuplicateTicket, i, j)
		}
		seen[k] = i
		keys[i] = k
	}
	return keys, nil
}

// issued 票据是否出现在已进入对象账本的提交中
func (s *Service) issued(ctx context.Context, key fr.Element) (bool, error) {
	com, ok, err := s.tickets.owner(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if _, err := s.obul.Witness(ctx, com); err != nil {
		if errors.Is(err, bulletin.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// claimTickets 在对象账本互斥区内确认票据未被签发过并占位
//
// 票据已签发时返回 VerifyError(ErrDuplicateTicket)。
func (s *Service) claimTickets(ctx context.Context, keys []fr.Element, com object.Com) error {
	for i, k := range keys {
		seen, err := s.issued(ctx, k)
		if err != nil {
			return err
		}
		if seen {
			return bulletin.VerifyError(fmt.Errorf("%w: index %d", ErrDuplicateTicket, i))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return s.tickets.claim(ctx, keys, com)
}
