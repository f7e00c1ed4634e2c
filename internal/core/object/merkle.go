package object

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
)

// MaxMerkleDepth 最大树深度（最多 2^32 个叶子）
const MaxMerkleDepth = 32

var (
	// ErrInvalidDepth 树深度非法
	ErrInvalidDepth = errors.New("invalid merkle depth")

	// ErrLeafIndexOutOfRange 叶子索引越界
	ErrLeafIndexOutOfRange = errors.New("merkle leaf index out of range")
)

// HashLeaf 叶子哈希：H(x, 0)
func HashLeaf(x fr.Element) fr.Element {
	return Hash(x, fr.Element{})
}

// HashNode 内部节点哈希：H(left, right)
func HashNode(left, right fr.Element) fr.Element {
	return Hash(left, right)
}

// MerkleTree 固定深度的稀疏 Poseidon2 Merkle 树
//
// 🏗️ **存储结构**：只保存已填充区域的各层节点，
// 未填充的兄弟节点取对应层的空子树哈希。
//
// ⚠️ 非并发安全，由所属账本加锁。
type MerkleTree struct {
	depth  int
	levels [][]fr.Element // levels[0] 为叶子哈希
	values []fr.Element   // 叶子原始值
	zeros  []fr.Element   // zeros[k] 为高度 k 的空子树根
}

// NewMerkleTree 创建指定深度的空树
func NewMerkleTree(depth int) (*MerkleTree, error) {
	if depth <= 0 || depth > MaxMerkleDepth {
		return nil, fmt.Errorf("%w: depth=%d", ErrInvalidDepth, depth)
	}
	zeros := make([]fr.Element, depth+1)
	zeros[0] = HashLeaf(fr.Element{})
	for k := 1; k <= depth; k++ {
		zeros[k] = HashNode(zeros[k-1], zeros[k-1])
	}
	return &MerkleTree{
		depth:  depth,
		levels: make([][]fr.Element, depth+1),
		zeros:  zeros,
	}, nil
}

// Depth 树深度
func (t *MerkleTree) Depth() int { return t.depth }

// Len 已填充叶子数
func (t *MerkleTree) Len() int { return len(t.values) }

// Capacity 叶子容量
func (t *MerkleTree) Capacity() uint64 { return uint64(1) << uint(t.depth) }

// Leaf 返回第 i 个叶子的原始值
func (t *MerkleTree) Leaf(i int) (fr.Element, error) {
	if i < 0 || i >= len(t.values) {
		return fr.Element{}, fmt.Errorf("%w: index=%d", ErrLeafIndexOutOfRange, i)
	}
	return t.values[i], nil
}

// Append 追加叶子，返回其索引
func (t *MerkleTree) Append(value fr.Element) (int, error) {
	i := len(t.values)
	if err := t.Set(i, value); err != nil {
		return 0, err
	}
	return i, nil
}

// Set 写入第 i 个叶子（i 不超过当前长度）并更新路径
func (t *MerkleTree) Set(i int, value fr.Element) error {
	if i < 0 || i > len(t.values) || uint64(i) >= t.Capacity() {
		return fmt.Errorf("%w: index=%d", ErrLeafIndexOutOfRange, i)
	}
	if i == len(t.values) {
		t.values = append(t.values, value)
		t.levels[0] = append(t.levels[0], HashLeaf(value))
	} else {
		t.values[i] = value
		t.levels[0][i] = HashLeaf(value)
	}

	idx := i
	for k := 1; k <= t.depth; k++ {
		parent := idx >> 1
		left := t.node(k-1, parent<<1)
		right := t.node(k-1, parent<<1|1)
		h := HashNode(left, right)
		if parent == len(t.levels[k]) {
			t.levels[k] = append(t.levels[k], h)
		} else {
			t.levels[k][parent] = h
		}
		idx = parent
	}
	return nil
}

func (t *MerkleTree) node(level, i int) fr.Element {
	if i < len(t.levels[level]) {
		return t.levels[level][i]
	}
	return t.zeros[level]
}

// Root 当前根
func (t *MerkleTree) Root() fr.Element {
	return t.node(t.depth, 0)
}

// Proof 生成第 i 个叶子的路径
func (t *MerkleTree) Proof(i int) (MerkleProof, error) {
	if i < 0 || i >= len(t.values) {
		return MerkleProof{}, fmt.Errorf("%w: index=%d", ErrLeafIndexOutOfRange, i)
	}
	p := MerkleProof{
		Index:    uint64(i),
		Siblings: make([]fr.Element, t.depth),
	}
	idx := i
	for k := 0; k < t.depth; k++ {
		p.Siblings[k] = t.node(k, idx^1)
		idx >>= 1
	}
	return p, nil
}

// MerkleProof Merkle 路径（从叶子到根）
type MerkleProof struct {
	Index    uint64       `json:"index"`
	Siblings []fr.Element `json:"siblings"`
}

// Direction 第 k 层方向：true 表示当前节点是右孩子
func (p MerkleProof) Direction(k int) bool {
	return (p.Index>>uint(k))&1 == 1
}

// ComputeRoot 从叶子值计算根
func (p MerkleProof) ComputeRoot(value fr.Element) fr.Element {
	cur := HashLeaf(value)
	for k, sib := range p.Siblings {
		if p.Direction(k) {
			cur = HashNode(sib, cur)
		} else {
			cur = HashNode(cur, sib)
		}
	}
	return cur
}

// Verify 校验叶子值在给定根下
func (p MerkleProof) Verify(value, root fr.Element) bool {
	r := p.ComputeRoot(value)
	return r.Equal(&root)
}

// Assign 转换为电路见证
func (p MerkleProof) Assign() MerkleProofVar {
	v := MerkleProofVar{
		Siblings:   make([]frontend.Variable, len(p.Siblings)),
		Directions: make([]frontend.Variable, len(p.Siblings)),
	}
	for k := range p.Siblings {
		v.Siblings[k] = Big(p.Siblings[k])
		v.Directions[k] = BoolVar(p.Direction(k))
	}
	return v
}

// EmptyMerkleProof 全零路径，用于填充未使用的见证槽位
func EmptyMerkleProof(depth int) MerkleProof {
	return MerkleProof{Siblings: make([]fr.Element, depth)}
}

// MerkleProofVar 电路内的 Merkle 路径
//
// ⚠️ 切片长度必须在创建电路实例时确定，请使用 NewMerkleProofVar。
type MerkleProofVar struct {
	Siblings   []frontend.Variable
	Directions []frontend.Variable // 0=左，1=右
}

// NewMerkleProofVar 按深度分配电路路径
func NewMerkleProofVar(depth int) MerkleProofVar {
	return MerkleProofVar{
		Siblings:   make([]frontend.Variable, depth),
		Directions: make([]frontend.Variable, depth),
	}
}

// ComputeRoot 电路内从叶子值计算根
func (h *Hasher) ComputeRoot(leaf frontend.Variable, p MerkleProofVar) frontend.Variable {
	api := h.api
	cur := h.Hash(leaf, 0)
	for k := range p.Siblings {
		d := p.Directions[k]
		api.AssertIsBoolean(d)
		left := api.Select(d, p.Siblings[k], cur)
		right := api.Select(d, cur, p.Siblings[k])
		cur = h.Hash(left, right)
	}
	return cur
}

// IsMember 返回叶子在根下是否成立（布尔变量，不施加断言）
func (h *Hasher) IsMember(leaf frontend.Variable, p MerkleProofVar, root frontend.Variable) frontend.Variable {
	return h.api.IsZero(h.api.Sub(h.ComputeRoot(leaf, p), root))
}

// VerifyMerklePath 断言叶子在根下
func (h *Hasher) VerifyMerklePath(leaf frontend.Variable, p MerkleProofVar, root frontend.Variable) {
	h.api.AssertIsEqual(h.ComputeRoot(leaf, p), root)
}

// MerkleWitness 根与路径，证明某个叶子属于该根对应的树
type MerkleWitness struct {
	Root  fr.Element  `json:"root"`
	Proof MerkleProof `json:"proof"`
}
