package scan

import (
	"fmt"
	"strings"

	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/user"
)

// ApplyVar 电路内扫描一个批次，返回新用户（NulSeed 与 ComRand 沿用旧值）
//
// 全部槽位都会计算，按激活位与调用状态选择结果。
func ApplyVar(h *object.Hasher, old user.UserVar, pub PubScanArgsVar, priv PrivScanArgsVar, methods []MethodVar) (user.UserVar, error) {
	api := h.API()
	w := len(priv.Tickets)
	if len(priv.Active) != w || len(priv.EncArgs) != w || len(priv.PostTimes) != w ||
		len(priv.MembPriv) != w || len(priv.NmembPriv) != w ||
		len(pub.MembPub) != w || len(pub.NmembPub) != w {
		return user.UserVar{}, ErrWidth
	}

	var count frontend.Variable = 0
	for _, a := range priv.Active {
		api.AssertIsBoolean(a)
		count = api.Add(count, a)
	}
	anyActive := api.Sub(1, api.IsZero(count))
	opening := api.And(old.IsIngestOver, anyActive)

	oldIP := api.Select(opening, 0, old.OldInProgress)
	newIP := api.Select(opening, 0, old.NewInProgress)
	ingest := api.Select(anyActive, 0, old.IsIngestOver)

	cur := old.Copy()
	for i := 0; i < w; i++ {
		a := priv.Active[i]
		t := priv.Tickets[i]
		api.AssertIsBoolean(t.Expirable)

		digest := ticket.DigestVar(h, t)
		oldIP = api.Select(a, h.Hash(oldIP, digest), oldIP)

		called := bulletin.EnforceMembNmemb(h, ticket.KeyVar(h, t), a,
			priv.MembPriv[i], pub.MembPub[i], priv.NmembPriv[i], pub.NmembPub[i])
		leaf := priv.MembPriv[i].Leaf
		api.AssertIsEqual(api.Mul(called, api.Sub(priv.EncArgs[i], leaf.Ct)), 0)
		api.AssertIsEqual(api.Mul(called, api.Sub(priv.PostTimes[i], leaf.Time)), 0)

		void := api.And(t.Expirable, isGreater(api, priv.PostTimes[i], t.Expiration))
		expired := api.And(t.Expirable, isGreater(api, pub.CurTime, t.Expiration))
		apply := api.And(called, api.Sub(1, void))
		carry := api.And(api.Sub(a, called), api.Sub(1, expired))
		newIP = api.Select(carry, h.Hash(newIP, digest), newIP)

		arg := tikcrypto.DecryptVar(api, t.EncKey, priv.EncArgs[i])
		var matched frontend.Variable = 0
		for _, m := range methods {
			hit := api.And(apply, api.IsZero(api.Sub(t.MethodID, m.ID)))
			res, err := m.Predicate(api, cur, arg)
			if err != nil {
				return user.UserVar{}, err
			}
			for k := range cur.Data {
				cur.Data[k] = api.Select(hit, res.Data[k], cur.Data[k])
			}
			matched = api.Add(matched, hit)
		}
		// 生效的调用必须对应唯一的已声明方法
		api.AssertIsEqual(api.Mul(apply, api.Sub(1, matched)), 0)
	}

	conv := api.And(anyActive, api.IsZero(api.Sub(oldIP, old.CallbackHash)))
	cur.CallbackHash = api.Select(conv, newIP, old.CallbackHash)
	cur.OldInProgress = api.Select(conv, newIP, oldIP)
	cur.NewInProgress = newIP
	cur.IsIngestOver = api.Select(conv, 1, ingest)
	return cur, nil
}

// ScanPredicate 断言 next 是 old 扫描批次后的状态；NulSeed 与 ComRand 不受约束
func ScanPredicate(h *object.Hasher, old, next user.UserVar, pub PubScanArgsVar, priv PrivScanArgsVar, methods []MethodVar) error {
	want, err := ApplyVar(h, old, pub, priv, methods)
	if err != nil {
		return err
	}
	want.NulSeed = next.NulSeed
	want.ComRand = next.ComRand
	user.AssertEqualVar(h.API(), want, next)
	return nil
}

// isGreater a > b（按规范整数比较）
func isGreater(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.IsZero(api.Sub(api.Cmp(a, b), 1))
}

// ScanCircuit 增量扫描证明电路
//
// 📋 **公开输入顺序**：[NewCom, OldNul, MembPub..., NmembPub..., CurTime, ObjRoot]
//
// 🔍 **约束**：
// - 旧承诺在 ObjRoot 下，OldNul = Nullify(old)
// - New 是 Old 扫描批次后的状态，NewCom = Commit(new)
type ScanCircuit struct {
	NewCom   frontend.Variable   `gnark:",public"`
	OldNul   frontend.Variable   `gnark:",public"`
	MembPub  []frontend.Variable `gnark:",public"`
	NmembPub []frontend.Variable `gnark:",public"`
	CurTime  frontend.Variable   `gnark:",public"`
	ObjRoot  frontend.Variable   `gnark:",public"`

	Old     user.UserVar
	New     user.UserVar
	Priv    PrivScanArgsVar
	ObjPath object.MerkleProofVar

	methods []MethodVar `gnark:"-"`
}

// NewScanCircuit 按数据宽度、批宽与树深度分配电路
func NewScanCircuit(dataWidth, width, objDepth, cbDepth int, methods []MethodVar) *ScanCircuit {
	return &ScanCircuit{
		MembPub:  make([]frontend.Variable, width),
		NmembPub: make([]frontend.Variable, width),
		Old:      user.NewUserVar(dataWidth),
		New:      user.NewUserVar(dataWidth),
		Priv:     NewPrivScanArgsVar(width, cbDepth),
		ObjPath:  object.NewMerkleProofVar(objDepth),
		methods:  methods,
	}
}

// Define 实现 frontend.Circuit
func (c *ScanCircuit) Define(api frontend.API) error {
	h, err := object.NewHasher(api)
	if err != nil {
		return err
	}
	user.AssertWellFormed(api, c.Old)
	user.AssertWellFormed(api, c.New)

	h.VerifyMerklePath(user.CommitVar(h, c.Old), c.ObjPath, c.ObjRoot)
	api.AssertIsEqual(c.OldNul, user.NullifyVar(h, c.Old))

	pub := PubScanArgsVar{MembPub: c.MembPub, NmembPub: c.NmembPub, CurTime: c.CurTime}
	if err := ScanPredicate(h, c.Old, c.New, pub, c.Priv, c.methods); err != nil {
		return err
	}
	api.AssertIsEqual(c.NewCom, user.CommitVar(h, c.New))
	return nil
}

// circuitID 扫描电路缓存ID
func circuitID(name string, dataWidth, width, objDepth, cbDepth int, methods []MethodVar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scan/%s/w%d/b%d/o%d/c%d", name, dataWidth, width, objDepth, cbDepth)
	for _, m := range methods {
		fmt.Fprintf(&b, "/m%d", m.ID)
	}
	return b.String()
}

var _ frontend.Circuit = (*ScanCircuit)(nil)
