package interaction

import (
	"context"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/ticket"
	"github.com/weisyn/zkcallback/internal/core/tikcrypto"
	"github.com/weisyn/zkcallback/internal/core/user"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// Input 交互的调用参数
//
// Memb.Root 总是作为公开输入；Memb.Proof 只在 CheckMembership 时使用，
// 深度必须与生成密钥时的对象树深度一致。
type Input struct {
	Pub  []fr.Element
	Priv []fr.Element
	Memb object.MerkleWitness
}

// GenerateKeys 编译交互电路并执行可信设置（按电路ID缓存）
func GenerateKeys[D user.UserData](ctx context.Context, cm *zkproof.CircuitManager, it *Interaction[D], objDepth int) (*zkproof.Keys, error) {
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return cm.Setup(ctx, CircuitID(it, objDepth), newCircuit(it, objDepth))
}

// Interact 执行一次交互并生成证明
//
// 返回的新用户需要在服务方接受 ExecutedMethod 之后才能替换旧用户。
func Interact[D user.UserData](
	ctx context.Context,
	rng io.Reader,
	prover *zkproof.Prover,
	keys *zkproof.Keys,
	u *user.User[D],
	it *Interaction[D],
	servicePK tikcrypto.TicketKey,
	in Input,
) (*ExecutedMethod, *user.User[D], error) {
	em, next, assignment, err := execute(rng, u, it, servicePK, in)
	if err != nil {
		return nil, nil, err
	}
	proof, err := prover.Prove(ctx, keys, assignment)
	if err != nil {
		return nil, nil, fmt.Errorf("交互 %s 证明失败: %w", it.Name, err)
	}
	em.Proof = proof
	return em, next, nil
}

// execute 运行原生方法、签发票据并构造电路赋值
func execute[D user.UserData](
	rng io.Reader,
	u *user.User[D],
	it *Interaction[D],
	servicePK tikcrypto.TicketKey,
	in Input,
) (*ExecutedMethod, *user.User[D], *InteractionCircuit, error) {
	if err := it.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if len(in.Pub) != it.NumPubArgs || len(in.Priv) != it.NumPrivArgs {
		return nil, nil, nil, fmt.Errorf("%w: pub=%d/%d, priv=%d/%d",
			ErrArgCount, len(in.Pub), it.NumPubArgs, len(in.Priv), it.NumPrivArgs)
	}
	if it.CheckMembership && len(in.Memb.Proof.Siblings) == 0 {
		return nil, nil, nil, ErrMissingWitness
	}

	next, err := it.Method(u.Clone(), in.Pub, in.Priv)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrMethodFailed, err)
	}
	if next == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil user", ErrMethodFailed)
	}
	// 协议字段只由协议维护
	next.ZK = u.ZK
	next.Tickets = u.Tickets.Clone()
	if err := next.Refresh(rng); err != nil {
		return nil, nil, nil, err
	}

	em := &ExecutedMethod{
		OldNullifier: u.Nullify(),
		MembPub:      in.Memb.Root,
		CbComList:    make([]fr.Element, 0, len(it.Callbacks)),
		CbTikList:    make([]TicketRand, 0, len(it.Callbacks)),
	}
	for _, cb := range it.Callbacks {
		tr, err := issueTicket(rng, servicePK, cb)
		if err != nil {
			return nil, nil, nil, err
		}
		next.RegisterTicket(tr.Ticket)
		em.CbComList = append(em.CbComList, tr.Ticket.Commit())
		em.CbTikList = append(em.CbTikList, tr)
	}
	em.NewObject = next.Commit()

	depth := 0
	if it.CheckMembership {
		depth = len(in.Memb.Proof.Siblings)
	}
	c := newCircuit(it, depth)
	c.NewCom = object.Big(em.NewObject)
	c.OldNul = object.Big(em.OldNullifier)
	c.ObjRoot = object.Big(in.Memb.Root)
	c.Old = u.Assign()
	c.New = next.Assign()
	for i := range in.Pub {
		c.PubArgs[i] = object.Big(in.Pub[i])
	}
	for i := range in.Priv {
		c.PrivArgs[i] = object.Big(in.Priv[i])
	}
	for i, tr := range em.CbTikList {
		c.CbComs[i] = object.Big(em.CbComList[i])
		c.Tickets[i] = tr.Ticket.Entry.Assign()
		c.TicketRands[i] = object.Big(tr.Ticket.ComRand)
	}
	if it.CheckMembership {
		c.ObjPath = in.Memb.Proof.Assign()
	}
	return em, next, c, nil
}

// issueTicket 为一个回调签发票据：重随机化服务公钥、生成一次一密密钥与承诺随机数
func issueTicket[D user.UserData](rng io.Reader, servicePK tikcrypto.TicketKey, cb Callback[D]) (TicketRand, error) {
	r, err := tikcrypto.RandomScalar(rng)
	if err != nil {
		return TicketRand{}, err
	}
	enc, err := tikcrypto.NewEncKey(rng)
	if err != nil {
		return TicketRand{}, err
	}
	comRand, err := object.Random(rng)
	if err != nil {
		return TicketRand{}, err
	}
	entry := ticket.CallbackEntry{
		Tik:        servicePK.Rerand(r),
		EncKey:     enc,
		MethodID:   cb.MethodID,
		Expirable:  cb.Expirable,
		Expiration: cb.Expiration,
	}
	return TicketRand{Ticket: ticket.CallbackCom{Entry: entry, ComRand: comRand}, Rand: r}, nil
}

// Submission 转换为对象账本提交
func (em *ExecutedMethod) Submission(args []fr.Element, vk groth16.VerifyingKey) *bulletin.ObjectSubmission {
	return &bulletin.ObjectSubmission{
		Object:       em.NewObject,
		OldNul:       em.OldNullifier,
		CbComList:    em.CbComList,
		Args:         args,
		Proof:        em.Proof,
		VerifyingKey: vk,
		MembPub:      em.MembPub,
	}
}

// Join 把新用户的承诺加入对象账本
func Join[D user.UserData](ctx context.Context, u *user.User[D], bul bulletin.JoinableBulletin, authData []byte) error {
	return bulletin.AppendObjectOnly(ctx, bul, u.Commit(), authData)
}

var _ frontend.Circuit = (*InteractionCircuit)(nil)
