package bulletin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// 默认参数
const (
	DefaultDepth       = 16
	DefaultRootHistory = 64
)

// Options 账本构造参数
//
// Logger、Metrics、Bus 可为空。Authorizer 只用于对象账本，Clock 只用于回调账本。
type Options struct {
	Depth       int
	RootHistory int

	Logger     log.Logger
	Metrics    *metrics.LedgerMetrics
	Bus        event.EventBus
	Authorizer JoinAuthorizer
	Clock      clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Depth == 0 {
		o.Depth = DefaultDepth
	}
	if o.RootHistory <= 0 {
		o.RootHistory = DefaultRootHistory
	}
	if o.Authorizer == nil {
		o.Authorizer = AllowAllJoins{}
	}
	return o
}

// rootHistory 最近 size 个根的窗口
type rootHistory struct {
	size int
	ring []fr.Element
	refs map[fr.Element]int
}

func newRootHistory(size int) *rootHistory {
	return &rootHistory{size: size, refs: make(map[fr.Element]int)}
}

func (h *rootHistory) push(root fr.Element) {
	h.ring = append(h.ring, root)
	h.refs[root]++
	if len(h.ring) > h.size {
		old := h.ring[0]
		h.ring = h.ring[1:]
		if h.refs[old]--; h.refs[old] == 0 {
			delete(h.refs, old)
		}
	}
}

func (h *rootHistory) contains(root fr.Element) bool {
	return h.refs[root] > 0
}

// ============================================================================
//                                键编码
// ============================================================================

func indexKey(prefix string, i int) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefix, uint64(i)))
}

func elementKey(prefix string, e fr.Element) []byte {
	b := e.Bytes()
	return []byte(prefix + hex.EncodeToString(b[:]))
}

func elementBytes(e fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

func elementFromBytes(b []byte) (fr.Element, error) {
	var e fr.Element
	if len(b) != fr.Bytes {
		return e, fmt.Errorf("元素长度非法: %d", len(b))
	}
	if err := e.SetBytesCanonical(b); err != nil {
		return e, err
	}
	return e, nil
}

// sortedIndexed 解析 prefix%016x 形式的键并按索引排序，要求索引从 0 连续
func sortedIndexed(prefix string, kv map[string][]byte) ([][]byte, error) {
	type entry struct {
		idx uint64
		val []byte
	}
	entries := make([]entry, 0, len(kv))
	for k, v := range kv {
		var idx uint64
		if _, err := fmt.Sscanf(strings.TrimPrefix(k, prefix), "%016x", &idx); err != nil {
			return nil, fmt.Errorf("解析键失败 %q: %w", k, err)
		}
		entries = append(entries, entry{idx: idx, val: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([][]byte, len(entries))
	for i, e := range entries {
		if e.idx != uint64(i) {
			return nil, fmt.Errorf("叶子索引不连续: 期望=%d, 实际=%d", i, e.idx)
		}
		out[i] = e.val
	}
	return out, nil
}

func hexOf(e fr.Element) string {
	b := e.Bytes()
	return hex.EncodeToString(b[:8])
}

// timeOf 纪元时间
func timeOf(c clock.Clock) object.Time {
	if c == nil {
		return 0
	}
	return object.Time(c.Epoch())
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
