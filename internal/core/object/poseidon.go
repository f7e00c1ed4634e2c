package object

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	nativeposeidon2 "github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/permutation/poseidon2"
)

// Poseidon2 参数：宽度 2，6 轮完全轮，50 轮部分轮（与 gnark-crypto BN254 默认参数一致）
const (
	poseidonWidth         = 2
	poseidonFullRounds    = 6
	poseidonPartialRounds = 50
)

// Hash 原生 Poseidon2 Merkle-Damgard 哈希
//
// 初始状态为 0，每个域元素占一个 32 字节块：state = Compress(state, x_i)。
// 电路侧 Hasher.Hash 逐块复现同样的压缩链。
func Hash(inputs ...fr.Element) fr.Element {
	h := nativeposeidon2.NewMerkleDamgardHasher()
	for i := range inputs {
		b := inputs[i].Bytes()
		h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// Hasher 电路内 Poseidon2 哈希器
//
// 🎯 **用途**：为所有电路提供与 Hash 一致的约束实现。
// ⚠️ 置换参数在构造时计算一次，同一 Define 内应复用同一个 Hasher。
type Hasher struct {
	api  frontend.API
	perm *poseidon2.Permutation
}

// NewHasher 创建电路哈希器
func NewHasher(api frontend.API) (*Hasher, error) {
	perm, err := poseidon2.NewPoseidon2FromParameters(api, poseidonWidth, poseidonFullRounds, poseidonPartialRounds)
	if err != nil {
		return nil, err
	}
	return &Hasher{api: api, perm: perm}, nil
}

// API 返回底层约束 API
func (h *Hasher) API() frontend.API {
	return h.api
}

// Hash 计算多个变量的哈希
func (h *Hasher) Hash(inputs ...frontend.Variable) frontend.Variable {
	var state frontend.Variable = 0
	for _, x := range inputs {
		state = h.perm.Compress(state, x)
	}
	return state
}

// HashVar 一次性电路哈希，适合只哈希一次的调用点
func HashVar(api frontend.API, inputs ...frontend.Variable) (frontend.Variable, error) {
	h, err := NewHasher(api)
	if err != nil {
		return nil, err
	}
	return h.Hash(inputs...), nil
}
