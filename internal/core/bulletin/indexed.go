package bulletin

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
)

// IndexedLeaf 回调账本叶子：按 Key 排序的链表节点
//
// Next 为下一个更大的键，0 表示链表末尾。叶子 0 是键为 0 的哨兵。
type IndexedLeaf struct {
	Key  fr.Element  `json:"key"`
	Next fr.Element  `json:"next"`
	Ct   fr.Element  `json:"ct"`
	Time object.Time `json:"time"`
}

// Value 叶子值：H(key, next, ct, time)
func (l IndexedLeaf) Value() fr.Element {
	return object.Hash(l.Key, l.Next, l.Ct, l.Time.Element())
}

// Brackets 是否满足 key < k < next（next 为 0 时无上界）
func (l IndexedLeaf) Brackets(k fr.Element) bool {
	if !object.Less(l.Key, k) {
		return false
	}
	return l.Next.IsZero() || object.Less(k, l.Next)
}

// Assign 转换为电路见证
func (l IndexedLeaf) Assign() IndexedLeafVar {
	return IndexedLeafVar{
		Key:  object.Big(l.Key),
		Next: object.Big(l.Next),
		Ct:   object.Big(l.Ct),
		Time: uint64(l.Time),
	}
}

// CallbackWitness 回调账本见证
//
// Member 为真时 Leaf 是票据自身的叶子；否则 Leaf 是夹住票据键的低位叶子。
type CallbackWitness struct {
	Member bool               `json:"member"`
	Leaf   IndexedLeaf        `json:"leaf"`
	Proof  object.MerkleProof `json:"proof"`
	Root   fr.Element         `json:"root"`
}

// Verify 原生校验见证：成员时键相等，非成员时键被夹住，路径在 Root 下成立
func (w *CallbackWitness) Verify(key fr.Element) bool {
	if !w.Proof.Verify(w.Leaf.Value(), w.Root) {
		return false
	}
	if w.Member {
		return w.Leaf.Key.Equal(&key)
	}
	return w.Leaf.Brackets(key)
}

// Assign 转换为电路见证
func (w *CallbackWitness) Assign() CallbackWitnessVar {
	return CallbackWitnessVar{Leaf: w.Leaf.Assign(), Path: w.Proof.Assign()}
}

// EmptyCallbackWitness 全零见证，用于填充不需要的槽位
func EmptyCallbackWitness(depth int) CallbackWitness {
	return CallbackWitness{Proof: object.EmptyMerkleProof(depth)}
}

// ============================================================================
//                                电路镜像
// ============================================================================

// IndexedLeafVar 叶子的电路表示
type IndexedLeafVar struct {
	Key  frontend.Variable
	Next frontend.Variable
	Ct   frontend.Variable
	Time frontend.Variable
}

// CallbackWitnessVar 见证的电路表示（根作为单独的公开输入传入）
type CallbackWitnessVar struct {
	Leaf IndexedLeafVar
	Path object.MerkleProofVar
}

// NewCallbackWitnessVar 按深度分配电路见证
func NewCallbackWitnessVar(depth int) CallbackWitnessVar {
	return CallbackWitnessVar{Path: object.NewMerkleProofVar(depth)}
}

// LeafValueVar 电路内叶子值
func LeafValueVar(h *object.Hasher, l IndexedLeafVar) frontend.Variable {
	return h.Hash(l.Key, l.Next, l.Ct, l.Time)
}

// IsMemberOf 键在根下是否有对应叶子（布尔变量）
func IsMemberOf(h *object.Hasher, key frontend.Variable, w CallbackWitnessVar, root frontend.Variable) frontend.Variable {
	api := h.API()
	inTree := h.IsMember(LeafValueVar(h, w.Leaf), w.Path, root)
	return api.And(inTree, api.IsZero(api.Sub(w.Leaf.Key, key)))
}

// IsNonMemberOf 键在根下是否被某个低位叶子夹住（布尔变量）
func IsNonMemberOf(h *object.Hasher, key frontend.Variable, w CallbackWitnessVar, root frontend.Variable) frontend.Variable {
	api := h.API()
	inTree := h.IsMember(LeafValueVar(h, w.Leaf), w.Path, root)
	lowBelow := isLess(api, w.Leaf.Key, key)
	nextAbove := api.Or(api.IsZero(w.Leaf.Next), isLess(api, key, w.Leaf.Next))
	return api.And(inTree, api.And(lowBelow, nextAbove))
}

// EnforceMembershipOf 断言键在根下
func EnforceMembershipOf(h *object.Hasher, key frontend.Variable, w CallbackWitnessVar, root frontend.Variable) {
	h.API().AssertIsEqual(IsMemberOf(h, key, w, root), 1)
}

// EnforceNonMembershipOf 断言键不在根下
func EnforceNonMembershipOf(h *object.Hasher, key frontend.Variable, w CallbackWitnessVar, root frontend.Variable) {
	h.API().AssertIsEqual(IsNonMemberOf(h, key, w, root), 1)
}

// EnforceMembNmemb 激活槽位必须给出成员或非成员证明之一，返回是否成员
//
// 未激活时不施加约束，返回值为 0。
func EnforceMembNmemb(
	h *object.Hasher,
	key, active frontend.Variable,
	memb CallbackWitnessVar, membRoot frontend.Variable,
	nmemb CallbackWitnessVar, nmembRoot frontend.Variable,
) frontend.Variable {
	api := h.API()
	api.AssertIsBoolean(active)
	isMemb := IsMemberOf(h, key, memb, membRoot)
	isNmemb := IsNonMemberOf(h, key, nmemb, nmembRoot)
	api.AssertIsEqual(api.Or(api.Or(isMemb, isNmemb), api.Sub(1, active)), 1)
	return api.And(isMemb, active)
}

// isLess a < b（按规范整数比较）
func isLess(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.IsZero(api.Add(api.Cmp(a, b), 1))
}
