package tikcrypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/object"
)

func TestRerand_PublicMatchesPrivate(t *testing.T) {
	sk, err := GenerateSigningKey(rand.Reader)
	require.NoError(t, err)

	r, err := RandomScalar(rand.Reader)
	require.NoError(t, err)

	tik := sk.Public().Rerand(r)
	require.True(t, tik.IsOnCurve())
	require.False(t, tik.Equal(sk.Public()))

	rsk, err := sk.Rerand(r)
	require.NoError(t, err)
	require.True(t, rsk.Public().Equal(tik), "重随机化私钥的公钥必须等于重随机化公钥")
}

func TestSignVerify_RerandomizedKey(t *testing.T) {
	sk, err := GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	r, err := RandomScalar(rand.Reader)
	require.NoError(t, err)
	rsk, err := sk.Rerand(r)
	require.NoError(t, err)
	tik := sk.Public().Rerand(r)

	key, err := NewEncKey(rand.Reader)
	require.NoError(t, err)
	args := object.FromUint64(7)

	ct, sig, err := EncryptAndSign(args, key, rsk)
	require.NoError(t, err)

	ok, err := tik.Verify(ct, sig)
	require.NoError(t, err)
	require.True(t, ok)

	// 原始公钥不能验证票据签名
	ok, _ = sk.Public().Verify(ct, sig)
	require.False(t, ok)

	// 篡改密文
	ok, _ = tik.Verify(object.FromUint64(1), sig)
	require.False(t, ok)

	m := Decrypt(key, ct)
	require.True(t, m.Equal(&args))
}

func TestSigningKey_BytesRoundTrip(t *testing.T) {
	sk, err := GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	back, err := SigningKeyFromBytes(sk.Bytes())
	require.NoError(t, err)
	require.True(t, back.Public().Equal(sk.Public()))

	_, err = SigningKeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestRerand_DistinctNonces(t *testing.T) {
	sk, err := GenerateSigningKey(rand.Reader)
	require.NoError(t, err)
	r1, err := RandomScalar(rand.Reader)
	require.NoError(t, err)
	r2, err := RandomScalar(rand.Reader)
	require.NoError(t, err)
	k1, err := sk.Rerand(r1)
	require.NoError(t, err)
	k2, err := sk.Rerand(r2)
	require.NoError(t, err)

	msg := object.FromUint64(99)
	s1, err := k1.Sign(msg)
	require.NoError(t, err)
	s2, err := k2.Sign(msg)
	require.NoError(t, err)
	// R 分量（前 32 字节）不同
	require.NotEqual(t, s1[:32], s2[:32])
}
