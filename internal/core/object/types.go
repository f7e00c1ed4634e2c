// Package object 提供协议的基础字段类型（承诺、作废符、时间）以及
// 与约束系统一致的 Poseidon2 哈希和 Merkle 累加器。
//
// 📋 **基础对象模型 (Object Model)**
//
// 协议中的每个值都是 BN254 标量域元素或其数组：
// - Com: 对象承诺，隐藏内容并可公开
// - Nul: 作废符，由旧状态确定性导出，只能被接受一次
// - Time: 外部提供的单调纪元计数，仅用于过期比较
package object

import (
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Com 对象承诺
type Com = fr.Element

// Nul 作废符
type Nul = fr.Element

// Time 纪元时间
type Time uint64

// Element 返回时间的域元素编码
func (t Time) Element() fr.Element {
	return FromUint64(uint64(t))
}

// FromUint64 将整数编码为域元素
func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// FromBool 将布尔值编码为 0/1
func FromBool(b bool) fr.Element {
	if b {
		return FromUint64(1)
	}
	return fr.Element{}
}

// Big 返回域元素的规范整数表示，用于见证赋值
func Big(e fr.Element) *big.Int {
	var b big.Int
	e.BigInt(&b)
	return &b
}

// Bigs 批量转换
func Bigs(es []fr.Element) []*big.Int {
	out := make([]*big.Int, len(es))
	for i := range es {
		out[i] = Big(es[i])
	}
	return out
}

// BoolVar 布尔值的见证赋值
func BoolVar(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Random 从随机源采样一个均匀域元素
//
// 读取 48 字节后模约简，偏差可忽略。
func Random(r io.Reader) (fr.Element, error) {
	var buf [fr.Bytes + 16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fr.Element{}, fmt.Errorf("读取随机数失败: %w", err)
	}
	var e fr.Element
	e.SetBytes(buf[:])
	return e, nil
}

// Less 按规范整数比较两个域元素
func Less(a, b fr.Element) bool {
	return a.Cmp(&b) < 0
}
