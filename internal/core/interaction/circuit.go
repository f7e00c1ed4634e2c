package interaction

import (
	"fmt"
	"strings"

	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/user"
)

// callbackShape 编译进约束的回调参数
type callbackShape struct {
	methodID   uint64
	expirable  bool
	expiration object.Time
}

// circuitShape 电路形状：谓词与回调声明在编译期固定
type circuitShape struct {
	predicate       Predicate
	callbacks       []callbackShape
	checkMembership bool
}

// InteractionCircuit 交互证明电路
//
// 📋 **公开输入顺序**：[NewCom, OldNul, PubArgs..., CbComs..., ObjRoot]
//
// 🔍 **约束**：
// - CheckMembership 时旧承诺在 ObjRoot 下
// - OldNul = Nullify(old)，NewCom = Commit(new)
// - 转换谓词成立
// - new.cbh = chain(old.cbh, tickets)，进行中哈希按开闭状态更新，开闭状态不变
// - CbComs[i] = Commit(ticket_i)，票据的方法ID与过期设置等于声明值
type InteractionCircuit struct {
	NewCom  frontend.Variable   `gnark:",public"`
	OldNul  frontend.Variable   `gnark:",public"`
	PubArgs []frontend.Variable `gnark:",public"`
	CbComs  []frontend.Variable `gnark:",public"`
	ObjRoot frontend.Variable   `gnark:",public"`

	Old         user.UserVar
	New         user.UserVar
	PrivArgs    []frontend.Variable
	Tickets     []ticket.CallbackEntryVar
	TicketRands []frontend.Variable
	ObjPath     object.MerkleProofVar

	shape circuitShape `gnark:"-"`
}

// newCircuit 按交互声明分配电路；objDepth 仅在 CheckMembership 时生效
func newCircuit[D user.UserData](it *Interaction[D], objDepth int) *InteractionCircuit {
	width := user.DataWidth[D]()
	n := len(it.Callbacks)
	c := &InteractionCircuit{
		PubArgs:     make([]frontend.Variable, it.NumPubArgs),
		CbComs:      make([]frontend.Variable, n),
		Old:         user.NewUserVar(width),
		New:         user.NewUserVar(width),
		PrivArgs:    make([]frontend.Variable, it.NumPrivArgs),
		Tickets:     make([]ticket.CallbackEntryVar, n),
		TicketRands: make([]frontend.Variable, n),
		shape:       shapeOf(it),
	}
	if it.CheckMembership {
		c.ObjPath = object.NewMerkleProofVar(objDepth)
	}
	return c
}

func shapeOf[D user.UserData](it *Interaction[D]) circuitShape {
	s := circuitShape{predicate: it.Predicate, checkMembership: it.CheckMembership}
	for _, cb := range it.Callbacks {
		s.callbacks = append(s.callbacks, callbackShape{
			methodID:   cb.MethodID,
			expirable:  cb.Expirable,
			expiration: cb.Expiration,
		})
	}
	return s
}

// CircuitID 电路缓存ID，包含全部影响约束的参数
//
// ⚠️ 谓词本身无法编码进ID，不同交互必须使用不同的 Name。
func CircuitID[D user.UserData](it *Interaction[D], objDepth int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "interaction/%s/w%d/p%d/s%d", it.Name, user.DataWidth[D](), it.NumPubArgs, it.NumPrivArgs)
	if it.CheckMembership {
		fmt.Fprintf(&b, "/m%d", objDepth)
	}
	for _, cb := range it.Callbacks {
		fmt.Fprintf(&b, "/cb%d", cb.MethodID)
		if cb.Expirable {
			fmt.Fprintf(&b, "@%d", cb.Expiration)
		}
	}
	return b.String()
}

// Define 实现 frontend.Circuit
func (c *InteractionCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	if len(c.Tickets) != len(c.shape.callbacks) || len(c.CbComs) != len(c.shape.callbacks) {
		return fmt.Errorf("票据数量与回调声明不一致: %d/%d", len(c.Tickets), len(c.shape.callbacks))
	}

	user.AssertWellFormed(api, c.Old)
	user.AssertWellFormed(api, c.New)

	if c.shape.checkMembership {
		h.VerifyMerklePath(user.CommitVar(h, c.Old), c.ObjPath, c.ObjRoot)
	}
	api.AssertIsEqual(c.OldNul, user.NullifyVar(h, c.Old))

	ok, err := c.shape.predicate(api, c.Old, c.New, c.PubArgs, c.PrivArgs)
	if err != nil {
		return err
	}
	api.AssertIsEqual(ok, 1)

	cbh := c.Old.CallbackHash
	for i, cb := range c.shape.callbacks {
		t := c.Tickets[i]
		api.AssertIsEqual(t.MethodID, cb.methodID)
		api.AssertIsEqual(t.Expirable, object.BoolVar(cb.expirable))
		api.AssertIsEqual(t.Expiration, uint64(cb.expiration))
		api.AssertIsEqual(c.CbComs[i], ticket.CommitVar(h, t, c.TicketRands[i]))
		cbh = ticket.AddToChainVar(h, cbh, t)
	}

	closed := c.Old.IsIngestOver
	api.AssertIsEqual(c.New.CallbackHash, cbh)
	api.AssertIsEqual(c.New.OldInProgress, api.Select(closed, cbh, c.Old.OldInProgress))
	api.AssertIsEqual(c.New.NewInProgress, api.Select(closed, cbh, c.Old.NewInProgress))
	api.AssertIsEqual(c.New.IsIngestOver, closed)

	api.AssertIsEqual(c.NewCom, user.CommitVar(h, c.New))
	return nil
}
