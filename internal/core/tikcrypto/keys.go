// Package tikcrypto 提供回调票据使用的密码学原语：
// 可重随机化的 EdDSA 签名密钥（BN254 扭曲爱德华兹曲线）与域上一次一密加密。
//
// 🎯 **票据密钥关系**：
//
//	sk' = sk + r (mod ℓ)
//	pk' = pk + r·B
//
// 用户用服务公钥和自选随机数 r 派生票据公钥；服务用同一个 r
// 重随机化私钥后即可对该票据签名，并可验证票据确由其公钥派生。
package tikcrypto

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	nativeposeidon2 "github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/zkcallback/internal/core/object"
)

const (
	sizeFr         = fr.Bytes
	sizePrivateKey = 2*sizeFr + 32
)

var (
	// ErrInvalidSignature 签名校验失败
	ErrInvalidSignature = errors.New("invalid ticket signature")

	// ErrInvalidKey 密钥编码非法
	ErrInvalidKey = errors.New("invalid ticket key")
)

// TicketKey 票据验证公钥（曲线点的仿射坐标）
type TicketKey struct {
	X fr.Element `json:"x"`
	Y fr.Element `json:"y"`
}

func (k TicketKey) point() twistededwards.PointAffine {
	return twistededwards.NewPointAffine(k.X, k.Y)
}

func keyFromPoint(p *twistededwards.PointAffine) TicketKey {
	return TicketKey{X: p.X, Y: p.Y}
}

// Equal 比较两个票据公钥
func (k TicketKey) Equal(o TicketKey) bool {
	return k.X.Equal(&o.X) && k.Y.Equal(&o.Y)
}

// IsOnCurve 是否为曲线上的点
func (k TicketKey) IsOnCurve() bool {
	p := k.point()
	return p.IsOnCurve()
}

// Rerand 用随机标量重随机化公钥：pk + r·B
func (k TicketKey) Rerand(r fr.Element) TicketKey {
	curve := twistededwards.GetEdwardsCurve()
	var rb, out twistededwards.PointAffine
	rb.ScalarMultiplication(&curve.Base, object.Big(r))
	p := k.point()
	out.Add(&p, &rb)
	return keyFromPoint(&out)
}

// Verify 校验对域元素消息的签名
func (k TicketKey) Verify(msg fr.Element, sig []byte) (bool, error) {
	pub := eddsa.PublicKey{A: k.point()}
	b := msg.Bytes()
	ok, err := pub.Verify(sig, b[:], nativeposeidon2.NewMerkleDamgardHasher())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ok, nil
}

// RandomScalar 采样 [0, ℓ) 内的重随机化标量，ℓ 为曲线子群阶
func RandomScalar(rng io.Reader) (fr.Element, error) {
	curve := twistededwards.GetEdwardsCurve()
	var buf [sizeFr + 16]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return fr.Element{}, fmt.Errorf("读取随机数失败: %w", err)
	}
	var n big.Int
	n.SetBytes(buf[:]).Mod(&n, &curve.Order)
	var e fr.Element
	e.SetBigInt(&n)
	return e, nil
}

// SigningKey 服务端签名私钥
type SigningKey struct {
	priv *eddsa.PrivateKey
}

// GenerateSigningKey 生成新的签名私钥
func GenerateSigningKey(rng io.Reader) (*SigningKey, error) {
	priv, err := eddsa.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("生成签名密钥失败: %w", err)
	}
	return &SigningKey{priv: priv}, nil
}

// SigningKeyFromBytes 从序列化字节恢复私钥
func SigningKeyFromBytes(b []byte) (*SigningKey, error) {
	if len(b) != sizePrivateKey {
		return nil, fmt.Errorf("%w: length=%d", ErrInvalidKey, len(b))
	}
	var priv eddsa.PrivateKey
	if _, err := priv.SetBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &SigningKey{priv: &priv}, nil
}

// Bytes 序列化私钥
func (k *SigningKey) Bytes() []byte {
	return k.priv.Bytes()
}

// Public 返回对应公钥
func (k *SigningKey) Public() TicketKey {
	return keyFromPoint(&k.priv.PublicKey.A)
}

// Rerand 用随机标量重随机化私钥
//
// 签名随机源也随 r 派生，避免两把重随机化密钥对同一消息复用签名随机数。
func (k *SigningKey) Rerand(r fr.Element) (*SigningKey, error) {
	curve := twistededwards.GetEdwardsCurve()
	raw := k.priv.Bytes()

	var s big.Int
	s.SetBytes(raw[sizeFr : 2*sizeFr])
	s.Add(&s, object.Big(r)).Mod(&s, &curve.Order)

	pub := k.Public().Rerand(r)
	pubPoint := pub.point()
	compressed := pubPoint.Bytes()

	rb := r.Bytes()
	seed := blake2b.Sum256(append(append([]byte{}, raw[2*sizeFr:]...), rb[:]...))

	out := make([]byte, 0, sizePrivateKey)
	out = append(out, compressed[:]...)
	scalar := make([]byte, sizeFr)
	s.FillBytes(scalar)
	out = append(out, scalar...)
	out = append(out, seed[:]...)
	return SigningKeyFromBytes(out)
}

// Sign 对域元素消息签名
func (k *SigningKey) Sign(msg fr.Element) ([]byte, error) {
	b := msg.Bytes()
	sig, err := k.priv.Sign(b[:], nativeposeidon2.NewMerkleDamgardHasher())
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	return sig, nil
}
