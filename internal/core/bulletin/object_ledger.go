package bulletin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// 对象账本存储键前缀
const (
	objLeafPrefix   = "obj/leaf/"
	objNulPrefix    = "obj/nul/"
	objRecordPrefix = "obj/rec/"

	objectLedgerName = "object"
)

// ObjectRecord 每个承诺对应的账本记录
type ObjectRecord struct {
	Index     int          `json:"index"`
	Object    fr.Element   `json:"object"`
	OldNul    fr.Element   `json:"old_nul"`
	CbComList []fr.Element `json:"cb_com_list"`
	Args      []fr.Element `json:"args"`
	MembPub   fr.Element   `json:"memb_pub"`
	Proof     []byte       `json:"proof,omitempty"`
	Joined    bool         `json:"joined"`
	PubData   []byte       `json:"pub_data,omitempty"`
}

// ObjectAppendedEvent 对象追加事件负载
type ObjectAppendedEvent struct {
	Index  int
	Object object.Com
	Root   fr.Element
	Joined bool
}

// ObjectLedger 对象账本
//
// 🏗️ **结构**：承诺按追加顺序进入固定深度的 Merkle 树，
// 作废符与记录写入键值存储；打开时从存储重建树与根历史。
type ObjectLedger struct {
	store  storage.KVStore
	logger log.Logger
	opts   Options

	excl sync.Mutex // Exclusive 临界区

	mu    sync.RWMutex // 保护以下内存状态
	tree  *object.MerkleTree
	index map[fr.Element]int
	roots *rootHistory
}

var _ JoinableBulletin = (*ObjectLedger)(nil)

// NewObjectLedger 打开对象账本
func NewObjectLedger(ctx context.Context, store storage.KVStore, opts Options) (*ObjectLedger, error) {
	opts = opts.withDefaults()
	tree, err := object.NewMerkleTree(opts.Depth)
	if err != nil {
		return nil, err
	}
	l := &ObjectLedger{
		store: store,
		opts:  opts,
		tree:  tree,
		index: make(map[fr.Element]int),
		roots: newRootHistory(opts.RootHistory),
	}
	if opts.Logger != nil {
		l.logger = opts.Logger.With("module", "bulletin", "ledger", objectLedgerName)
	}
	l.roots.push(tree.Root())
	if err := l.rebuild(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// rebuild 从存储恢复叶子
func (l *ObjectLedger) rebuild(ctx context.Context) error {
	kv, err := l.store.PrefixScan(ctx, []byte(objLeafPrefix))
	if err != nil {
		return fmt.Errorf("恢复对象账本失败: %w", err)
	}
	leaves, err := sortedIndexed(objLeafPrefix, kv)
	if err != nil {
		return fmt.Errorf("恢复对象账本失败: %w", err)
	}
	for _, b := range leaves {
		com, err := elementFromBytes(b)
		if err != nil {
			return fmt.Errorf("恢复对象账本失败: %w", err)
		}
		if _, err := l.appendLeaf(com); err != nil {
			return err
		}
	}
	if l.logger != nil && len(leaves) > 0 {
		l.logger.Infof("对象账本已恢复: leaves=%d", len(leaves))
	}
	return nil
}

// appendLeaf 写入内存树并记录新根，调用方持有 mu
func (l *ObjectLedger) appendLeaf(com object.Com) (int, error) {
	i, err := l.tree.Append(com)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerFull, err)
	}
	l.index[com] = i
	l.roots.push(l.tree.Root())
	return i, nil
}

// Len 叶子数
func (l *ObjectLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Len()
}

// Exclusive 实现 ObjectBulletin
func (l *ObjectLedger) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	l.excl.Lock()
	defer l.excl.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// MembershipPub 实现 PublicObjectBulletin
func (l *ObjectLedger) MembershipPub(context.Context) (fr.Element, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root(), nil
}

// IsKnownMembershipPub 实现 PublicObjectBulletin
func (l *ObjectLedger) IsKnownMembershipPub(_ context.Context, root fr.Element) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roots.contains(root), nil
}

// Witness 实现 PublicObjectBulletin
func (l *ObjectLedger) Witness(_ context.Context, com object.Com) (*object.MerkleWitness, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[com]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", ErrNotFound, hexOf(com))
	}
	p, err := l.tree.Proof(i)
	if err != nil {
		return nil, err
	}
	return &object.MerkleWitness{Root: l.tree.Root(), Proof: p}, nil
}

// Record 读取承诺的账本记录
func (l *ObjectLedger) Record(ctx context.Context, com object.Com) (*ObjectRecord, error) {
	b, err := l.store.Get(ctx, elementKey(objRecordPrefix, com))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: object %s", ErrNotFound, hexOf(com))
	}
	var rec ObjectRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("解析对象记录失败: %w", err)
	}
	return &rec, nil
}

// VerifyIn 实现 PublicObjectBulletin
func (l *ObjectLedger) VerifyIn(ctx context.Context, sub *ObjectSubmission) (bool, error) {
	rec, err := l.Record(ctx, sub.Object)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if rec.Joined || !rec.OldNul.Equal(&sub.OldNul) || len(rec.CbComList) != len(sub.CbComList) {
		return false, nil
	}
	for i := range rec.CbComList {
		if !rec.CbComList[i].Equal(&sub.CbComList[i]) {
			return false, nil
		}
	}
	return true, nil
}

// HasNeverReceivedNul 实现 ObjectBulletin
//
// 作废符占位记录的值是占用它的对象承诺；只有该对象已进入树时作废符才算已接受。
func (l *ObjectLedger) HasNeverReceivedNul(ctx context.Context, nul object.Nul) (bool, error) {
	owner, ok, err := l.nulOwner(ctx, nul)
	if err != nil || !ok {
		return !ok, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, accepted := l.index[owner]
	return !accepted, nil
}

// nulOwner 读取作废符占位记录中的对象承诺
func (l *ObjectLedger) nulOwner(ctx context.Context, nul object.Nul) (object.Com, bool, error) {
	b, err := l.store.Get(ctx, elementKey(objNulPrefix, nul))
	if err != nil || b == nil {
		return object.Com{}, false, err
	}
	owner, err := elementFromBytes(b)
	if err != nil {
		return object.Com{}, false, fmt.Errorf("解析作废符记录失败: %w", err)
	}
	return owner, true, nil
}

// AppendValue 实现 ObjectBulletin
//
// ⚠️ 作废符先通过 SetIfAbsent 占位，再与对象记录一起写入。
// 写入失败后占位仍在，但其对象不在树中：重试（或另一份提交）会接管该占位。
func (l *ObjectLedger) AppendValue(ctx context.Context, sub *ObjectSubmission) error {
	rec := &ObjectRecord{
		Object:    sub.Object,
		OldNul:    sub.OldNul,
		CbComList: sub.CbComList,
		Args:      sub.Args,
		MembPub:   sub.MembPub,
		Proof:     sub.Proof,
	}
	return l.append(ctx, rec, func(ctx context.Context) error {
		return l.claimNul(ctx, sub.OldNul, sub.Object)
	})
}

// claimNul 为 com 占用作废符，调用方持有 mu
func (l *ObjectLedger) claimNul(ctx context.Context, nul object.Nul, com object.Com) error {
	key := elementKey(objNulPrefix, nul)
	claimed, err := l.store.SetIfAbsent(ctx, key, elementBytes(com))
	if err != nil || claimed {
		return err
	}
	owner, _, err := l.nulOwner(ctx, nul)
	if err != nil {
		return err
	}
	if _, accepted := l.index[owner]; accepted {
		l.opts.Metrics.Rejected(objectLedgerName, "replay")
		return fmt.Errorf("%w: nullifier %s", ErrReplay, hexOf(nul))
	}
	if !owner.Equal(&com) {
		if err := l.store.Set(ctx, key, elementBytes(com)); err != nil {
			return err
		}
	}
	if l.logger != nil {
		l.logger.Debugf("接管未完成的作废符占位: nul=%s", hexOf(nul))
	}
	return nil
}

// JoinBul 实现 JoinableBulletin
func (l *ObjectLedger) JoinBul(ctx context.Context, com object.Com, pubData []byte) error {
	if err := l.opts.Authorizer.Authorize(com, pubData); err != nil {
		l.opts.Metrics.Rejected(objectLedgerName, "join")
		return err
	}
	rec := &ObjectRecord{Object: com, Joined: true, PubData: pubData}
	return l.append(ctx, rec, nil)
}

// append 追加一个承诺；claim 在写入记录前执行（作废符占位）
func (l *ObjectLedger) append(ctx context.Context, rec *ObjectRecord, claim func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.tree.Len()
	if uint64(idx) >= l.tree.Capacity() {
		return ErrLedgerFull
	}
	if _, dup := l.index[rec.Object]; dup {
		return fmt.Errorf("%w: object %s", ErrReplay, hexOf(rec.Object))
	}
	if claim != nil {
		if err := claim(ctx); err != nil {
			return err
		}
	}

	rec.Index = idx
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化对象记录失败: %w", err)
	}
	leafKey := string(indexKey(objLeafPrefix, idx))
	recKey := string(elementKey(objRecordPrefix, rec.Object))
	if err := l.store.SetMany(ctx, map[string][]byte{leafKey: elementBytes(rec.Object), recKey: b}); err != nil {
		l.opts.Metrics.AppendFailed(objectLedgerName)
		return fmt.Errorf("写入对象账本失败: %w", err)
	}

	if _, err := l.appendLeaf(rec.Object); err != nil {
		return err
	}
	root := l.tree.Root()
	l.opts.Metrics.Appended(objectLedgerName, l.tree.Len())
	if l.logger != nil {
		l.logger.Debugf("对象已追加: index=%d, object=%s, joined=%v", idx, hexOf(rec.Object), rec.Joined)
	}
	if l.opts.Bus != nil {
		l.opts.Bus.Publish(event.EventTypeObjectAppended, ObjectAppendedEvent{
			Index: idx, Object: rec.Object, Root: root, Joined: rec.Joined,
		})
	}
	return nil
}
