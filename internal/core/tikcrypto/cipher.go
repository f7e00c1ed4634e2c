package tikcrypto

import (
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/weisyn/zkcallback/internal/core/object"
)

// EncKey 票据加密密钥（一次一密）
type EncKey = fr.Element

// NewEncKey 随机生成加密密钥
func NewEncKey(rng io.Reader) (EncKey, error) {
	return object.Random(rng)
}

// Encrypt ct = m + k
func Encrypt(key EncKey, m fr.Element) fr.Element {
	var ct fr.Element
	ct.Add(&m, &key)
	return ct
}

// Decrypt m = ct - k
func Decrypt(key EncKey, ct fr.Element) fr.Element {
	var m fr.Element
	m.Sub(&ct, &key)
	return m
}

// DecryptVar 电路内解密
func DecryptVar(api frontend.API, key, ct frontend.Variable) frontend.Variable {
	return api.Sub(ct, key)
}

// EncryptAndSign 加密回调参数并用票据私钥对密文签名
func EncryptAndSign(args fr.Element, key EncKey, sk *SigningKey) (fr.Element, []byte, error) {
	ct := Encrypt(key, args)
	sig, err := sk.Sign(ct)
	if err != nil {
		return fr.Element{}, nil, err
	}
	return ct, sig, nil
}
