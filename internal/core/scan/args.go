// Package scan 实现回调扫描状态机：把票据的调用结果以批次形式折叠进用户，
// 并在见证完整个回调哈希链后收敛（关闭纪元）。
//
// 📋 **组成**：
//   - ScanMethod: 原生状态机，会对照回调账本检查见证
//   - ApplyVar / ScanPredicate: 无分支的电路镜像
//   - ScanCircuit: 增量扫描证明
//   - Scanner: 准备批次、生成证明
//
// 🔍 **一个批次**：
//  1. 关闭状态且批次非空时打开：两个进行中哈希清零
//  2. 每个激活槽位把票据追加到 oldIP
//  3. 已调用且未失效的调用作用到用户数据；未调用且未过期的票据追加到 newIP
//  4. 批次结束时若 oldIP 等于回调哈希则收敛：cbh = newIP，重新关闭
package scan

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/user"
)

var (
	// ErrWidth 批次各列长度不一致
	ErrWidth = errors.New("scan: batch columns have different widths")
	// ErrOutOfOrder 激活槽位不是票据簿中接下来的票据
	ErrOutOfOrder = errors.New("scan: tickets out of order")
	// ErrInconsistent 见证与账本不一致
	ErrInconsistent = errors.New("scan: witness inconsistent with bulletin")
	// ErrStaleWitness 非成员见证所在的根之后票据已被调用
	ErrStaleWitness = errors.New("scan: ticket called after non-membership root")
	// ErrDuplicateMethod 回调方法ID重复
	ErrDuplicateMethod = errors.New("scan: duplicate callback method")
)

// PubScanArgs 扫描的公开参数
//
// 每个槽位有各自的成员根与非成员根，允许批次内见证来自不同时刻的账本。
type PubScanArgs[D user.UserData] struct {
	MembPub  []fr.Element
	NmembPub []fr.Element
	CurTime  object.Time
	Bulletin bulletin.PublicCallbackBulletin
	Methods  []interaction.Callback[D]
}

// Args 证明中的参数段：[MembPub..., NmembPub..., CurTime]
func (p *PubScanArgs[D]) Args() []fr.Element {
	out := make([]fr.Element, 0, len(p.MembPub)+len(p.NmembPub)+1)
	out = append(out, p.MembPub...)
	out = append(out, p.NmembPub...)
	return append(out, p.CurTime.Element())
}

// MembRoots 成员见证引用的回调账本根（去重）
func (p *PubScanArgs[D]) MembRoots() []fr.Element {
	return distinct(p.MembPub)
}

// NmembRoots 非成员见证引用的回调账本根（去重）
//
// 调用记录只追加，成员见证在任意历史根下都成立；非成员见证只在当前根下有意义。
func (p *PubScanArgs[D]) NmembRoots() []fr.Element {
	return distinct(p.NmembPub)
}

func distinct(roots []fr.Element) []fr.Element {
	seen := make(map[fr.Element]struct{}, len(roots))
	var out []fr.Element
	for _, r := range roots {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// PrivScanArgs 扫描的私有参数，按槽位对齐
//
// 激活槽位必须构成前缀。已调用的槽位使用 MembPriv，未调用的使用 NmembPriv，
// 另一列填充 EmptyCallbackWitness。
type PrivScanArgs struct {
	Tickets   []ticket.CallbackEntry
	Active    []bool
	EncArgs   []fr.Element
	PostTimes []object.Time
	MembPriv  []bulletin.CallbackWitness
	NmembPriv []bulletin.CallbackWitness
}

// Width 批宽
func (p *PrivScanArgs) Width() int {
	return len(p.Tickets)
}

// NumActive 激活槽位数
func (p *PrivScanArgs) NumActive() int {
	n := 0
	for _, a := range p.Active {
		if a {
			n++
		}
	}
	return n
}

func (p *PrivScanArgs) check() error {
	w := len(p.Tickets)
	if len(p.Active) != w || len(p.EncArgs) != w || len(p.PostTimes) != w ||
		len(p.MembPriv) != w || len(p.NmembPriv) != w {
		return ErrWidth
	}
	for i := 1; i < w; i++ {
		if p.Active[i] && !p.Active[i-1] {
			return ErrOutOfOrder
		}
	}
	return nil
}

// ============================================================================
//                                电路镜像
// ============================================================================

// PubScanArgsVar 公开参数的电路表示
type PubScanArgsVar struct {
	MembPub  []frontend.Variable
	NmembPub []frontend.Variable
	CurTime  frontend.Variable
}

// PrivScanArgsVar 私有参数的电路表示
type PrivScanArgsVar struct {
	Tickets   []ticket.CallbackEntryVar
	Active    []frontend.Variable
	EncArgs   []frontend.Variable
	PostTimes []frontend.Variable
	MembPriv  []bulletin.CallbackWitnessVar
	NmembPriv []bulletin.CallbackWitnessVar
}

// NewPrivScanArgsVar 按批宽与回调树深度分配
func NewPrivScanArgsVar(width, cbDepth int) PrivScanArgsVar {
	p := PrivScanArgsVar{
		Tickets:   make([]ticket.CallbackEntryVar, width),
		Active:    make([]frontend.Variable, width),
		EncArgs:   make([]frontend.Variable, width),
		PostTimes: make([]frontend.Variable, width),
		MembPriv:  make([]bulletin.CallbackWitnessVar, width),
		NmembPriv: make([]bulletin.CallbackWitnessVar, width),
	}
	for i := 0; i < width; i++ {
		p.MembPriv[i] = bulletin.NewCallbackWitnessVar(cbDepth)
		p.NmembPriv[i] = bulletin.NewCallbackWitnessVar(cbDepth)
	}
	return p
}

// Assign 转换为电路见证
func (p *PrivScanArgs) Assign() PrivScanArgsVar {
	w := p.Width()
	out := PrivScanArgsVar{
		Tickets:   make([]ticket.CallbackEntryVar, w),
		Active:    make([]frontend.Variable, w),
		EncArgs:   make([]frontend.Variable, w),
		PostTimes: make([]frontend.Variable, w),
		MembPriv:  make([]bulletin.CallbackWitnessVar, w),
		NmembPriv: make([]bulletin.CallbackWitnessVar, w),
	}
	for i := 0; i < w; i++ {
		out.Tickets[i] = p.Tickets[i].Assign()
		out.Active[i] = object.BoolVar(p.Active[i])
		out.EncArgs[i] = object.Big(p.EncArgs[i])
		out.PostTimes[i] = uint64(p.PostTimes[i])
		out.MembPriv[i] = p.MembPriv[i].Assign()
		out.NmembPriv[i] = p.NmembPriv[i].Assign()
	}
	return out
}

// Assign 转换为电路见证
func (p *PubScanArgs[D]) Assign() PubScanArgsVar {
	out := PubScanArgsVar{
		MembPub:  make([]frontend.Variable, len(p.MembPub)),
		NmembPub: make([]frontend.Variable, len(p.NmembPub)),
		CurTime:  uint64(p.CurTime),
	}
	for i := range p.MembPub {
		out.MembPub[i] = object.Big(p.MembPub[i])
	}
	for i := range p.NmembPub {
		out.NmembPub[i] = object.Big(p.NmembPub[i])
	}
	return out
}

// MethodVar 电路中使用的回调方法：ID 与谓词
type MethodVar struct {
	ID        uint64
	Predicate interaction.CallbackPredicate
}

// MethodTable 从回调声明提取电路方法表
func MethodTable[D user.UserData](cbs []interaction.Callback[D]) []MethodVar {
	out := make([]MethodVar, len(cbs))
	for i, cb := range cbs {
		out[i] = MethodVar{ID: cb.MethodID, Predicate: cb.Predicate}
	}
	return out
}

// checkMethods 方法ID必须唯一：电路要求恰好一个方法匹配票据
func checkMethods[D user.UserData](cbs []interaction.Callback[D]) error {
	seen := make(map[uint64]struct{}, len(cbs))
	for _, cb := range cbs {
		if _, ok := seen[cb.MethodID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateMethod, cb.MethodID)
		}
		seen[cb.MethodID] = struct{}{}
	}
	return nil
}
