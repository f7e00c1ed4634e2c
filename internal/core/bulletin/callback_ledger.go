package bulletin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// 回调账本存储键前缀
const (
	cbLeafPrefix = "cb/leaf/"
	cbTikPrefix  = "cb/tik/"

	callbackLedgerName = "callback"
)

// CallRecord 一次调用的存储记录
type CallRecord struct {
	Tik       tikcrypto.TicketKey `json:"tik"`
	Ct        fr.Element          `json:"ct"`
	Signature []byte              `json:"signature"`
	Time      object.Time         `json:"time"`
}

// TicketCalledEvent 票据调用事件负载
type TicketCalledEvent struct {
	Tik  tikcrypto.TicketKey
	Ct   fr.Element
	Time object.Time
	Root fr.Element
}

// CallbackLedger 回调账本
//
// 🏗️ **索引 Merkle 树**：叶子按插入顺序排列，键通过 Next 形成有序链表，
// 因此对任意未调用票据都能给出"低位叶子夹住键"的非成员证明。
// 调用时间取自纪元时钟。
type CallbackLedger struct {
	store  storage.KVStore
	logger log.Logger
	opts   Options

	excl sync.Mutex

	mu     sync.RWMutex
	tree   *object.MerkleTree
	leaves []IndexedLeaf
	byKey  map[fr.Element]int
	roots  *rootHistory
}

var _ CallbackBulletin = (*CallbackLedger)(nil)

// NewCallbackLedger 打开回调账本
func NewCallbackLedger(ctx context.Context, store storage.KVStore, opts Options) (*CallbackLedger, error) {
	opts = opts.withDefaults()
	tree, err := object.NewMerkleTree(opts.Depth)
	if err != nil {
		return nil, err
	}
	l := &CallbackLedger{
		store: store,
		opts:  opts,
		tree:  tree,
		byKey: make(map[fr.Element]int),
		roots: newRootHistory(opts.RootHistory),
	}
	if opts.Logger != nil {
		l.logger = opts.Logger.With("module", "bulletin", "ledger", callbackLedgerName)
	}
	if err := l.rebuild(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// rebuild 从存储恢复叶子；空账本只有哨兵
func (l *CallbackLedger) rebuild(ctx context.Context) error {
	kv, err := l.store.PrefixScan(ctx, []byte(cbLeafPrefix))
	if err != nil {
		return fmt.Errorf("恢复回调账本失败: %w", err)
	}
	raw, err := sortedIndexed(cbLeafPrefix, kv)
	if err != nil {
		return fmt.Errorf("恢复回调账本失败: %w", err)
	}
	if len(raw) == 0 {
		if err := l.setLeaf(0, IndexedLeaf{}); err != nil {
			return err
		}
		l.roots.push(l.tree.Root())
		return nil
	}
	for i, b := range raw {
		var leaf IndexedLeaf
		if err := json.Unmarshal(b, &leaf); err != nil {
			return fmt.Errorf("解析回调叶子失败: %w", err)
		}
		if err := l.setLeaf(i, leaf); err != nil {
			return err
		}
	}
	l.roots.push(l.tree.Root())
	if l.logger != nil {
		l.logger.Infof("回调账本已恢复: calls=%d", len(raw)-1)
	}
	return nil
}

// setLeaf 写入内存叶子，调用方持有 mu
func (l *CallbackLedger) setLeaf(i int, leaf IndexedLeaf) error {
	if err := l.tree.Set(i, leaf.Value()); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerFull, err)
	}
	if i == len(l.leaves) {
		l.leaves = append(l.leaves, leaf)
	} else {
		l.leaves[i] = leaf
	}
	if i > 0 {
		l.byKey[leaf.Key] = i
	}
	return nil
}

// lowLeaf 找到夹住 key 的叶子，调用方持有 mu
func (l *CallbackLedger) lowLeaf(key fr.Element) int {
	i := 0
	for {
		next := l.leaves[i].Next
		if next.IsZero() || !object.Less(next, key) {
			return i
		}
		i = l.byKey[next]
	}
}

// Calls 已记录的调用数
func (l *CallbackLedger) Calls() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.leaves) - 1
}

// Exclusive 实现 CallbackBulletin
func (l *CallbackLedger) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	l.excl.Lock()
	defer l.excl.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// MembershipPub 实现 PublicCallbackBulletin
func (l *CallbackLedger) MembershipPub(context.Context) (fr.Element, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root(), nil
}

// IsKnownMembershipPub 实现 PublicCallbackBulletin
func (l *CallbackLedger) IsKnownMembershipPub(_ context.Context, root fr.Element) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roots.contains(root), nil
}

// Lookup 实现 PublicCallbackBulletin
func (l *CallbackLedger) Lookup(_ context.Context, tik tikcrypto.TicketKey) (fr.Element, object.Time, bool, error) {
	key := ticket.KeyOf(tik)
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byKey[key]
	if !ok {
		return fr.Element{}, 0, false, nil
	}
	leaf := l.leaves[i]
	return leaf.Ct, leaf.Time, true, nil
}

// VerifyIn 实现 PublicCallbackBulletin
func (l *CallbackLedger) VerifyIn(ctx context.Context, tik tikcrypto.TicketKey, ct fr.Element) (bool, error) {
	got, _, called, err := l.Lookup(ctx, tik)
	if err != nil || !called {
		return false, err
	}
	return got.Equal(&ct), nil
}

// Witness 实现 PublicCallbackBulletin
func (l *CallbackLedger) Witness(_ context.Context, tik tikcrypto.TicketKey) (*CallbackWitness, error) {
	key := ticket.KeyOf(tik)
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, member := l.byKey[key]
	if !member {
		i = l.lowLeaf(key)
	}
	p, err := l.tree.Proof(i)
	if err != nil {
		return nil, err
	}
	return &CallbackWitness{
		Member: member,
		Leaf:   l.leaves[i],
		Proof:  p,
		Root:   l.tree.Root(),
	}, nil
}

// resumable 占位记录与本次调用一致时返回该记录，否则返回 nil
func (l *CallbackLedger) resumable(ctx context.Context, claimKey []byte, ct fr.Element, sig []byte) (*CallRecord, error) {
	b, err := l.store.Get(ctx, claimKey)
	if err != nil || b == nil {
		return nil, err
	}
	var prev CallRecord
	if err := json.Unmarshal(b, &prev); err != nil {
		return nil, nil
	}
	if !prev.Ct.Equal(&ct) || !bytes.Equal(prev.Signature, sig) {
		return nil, nil
	}
	return &prev, nil
}

// HasNeverReceivedTik 实现 CallbackBulletin
//
// 以树中的叶子为准；存储中的占位记录由 AppendValue 处理。
func (l *CallbackLedger) HasNeverReceivedTik(_ context.Context, tik tikcrypto.TicketKey) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, seen := l.byKey[ticket.KeyOf(tik)]
	return !seen, nil
}

// AppendValue 实现 CallbackBulletin
func (l *CallbackLedger) AppendValue(ctx context.Context, tik tikcrypto.TicketKey, ct fr.Element, sig []byte) error {
	key := ticket.KeyOf(tik)
	if key.IsZero() {
		return fmt.Errorf("%w: zero ticket key", ErrVerify)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := len(l.leaves)
	if uint64(idx) >= l.tree.Capacity() {
		return ErrLedgerFull
	}
	if _, dup := l.byKey[key]; dup {
		return fmt.Errorf("%w: ticket %s", ErrReplay, hexOf(key))
	}

	now := timeOf(l.opts.Clock)
	rec, err := json.Marshal(&CallRecord{Tik: tik, Ct: ct, Signature: sig, Time: now})
	if err != nil {
		return fmt.Errorf("序列化调用记录失败: %w", err)
	}
	claimKey := elementKey(cbTikPrefix, key)
	claimed, err := l.store.SetIfAbsent(ctx, claimKey, rec)
	if err != nil {
		return err
	}
	if !claimed {
		// 同一次调用在叶子写入失败后重试：沿用首次占位的时间
		prev, err := l.resumable(ctx, claimKey, ct, sig)
		if err != nil {
			return err
		}
		if prev == nil {
			l.opts.Metrics.Rejected(callbackLedgerName, "replay")
			return fmt.Errorf("%w: ticket %s", ErrReplay, hexOf(key))
		}
		now = prev.Time
	}

	lowIdx := l.lowLeaf(key)
	low := l.leaves[lowIdx]
	leaf := IndexedLeaf{Key: key, Next: low.Next, Ct: ct, Time: now}
	low.Next = key

	lowBytes, err := json.Marshal(&low)
	if err != nil {
		return fmt.Errorf("序列化回调叶子失败: %w", err)
	}
	leafBytes, err := json.Marshal(&leaf)
	if err != nil {
		return fmt.Errorf("序列化回调叶子失败: %w", err)
	}
	lowKey := string(indexKey(cbLeafPrefix, lowIdx))
	newKey := string(indexKey(cbLeafPrefix, idx))
	if err := l.store.SetMany(ctx, map[string][]byte{lowKey: lowBytes, newKey: leafBytes}); err != nil {
		l.opts.Metrics.AppendFailed(callbackLedgerName)
		return fmt.Errorf("写入回调账本失败: %w", err)
	}

	if err := l.setLeaf(lowIdx, low); err != nil {
		return err
	}
	if err := l.setLeaf(idx, leaf); err != nil {
		return err
	}
	root := l.tree.Root()
	l.roots.push(root)

	l.opts.Metrics.Appended(callbackLedgerName, len(l.leaves)-1)
	if l.logger != nil {
		l.logger.Debugf("票据已调用: key=%s, time=%d", hexOf(key), now)
	}
	if l.opts.Bus != nil {
		l.opts.Bus.Publish(event.EventTypeTicketCalled, TicketCalledEvent{Tik: tik, Ct: ct, Time: now, Root: root})
	}
	return nil
}
