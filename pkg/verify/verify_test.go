package verify

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pubPEM)
}

func digestHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sign(t *testing.T, priv *rsa.PrivateKey, b []byte) string {
	t.Helper()
	sum := sha256.Sum256(b)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, sum[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifySuccessNoSignature(t *testing.T) {
	v, err := New(1024, false, "")
	require.NoError(t, err)

	data := []byte("module bytes")
	err = v.Verify(data, digestHex(data), "")
	assert.NoError(t, err)
}

func TestVerifyTooLarge(t *testing.T) {
	v, err := New(4, false, "")
	require.NoError(t, err)

	data := []byte("too big")
	err = v.Verify(data, digestHex(data), "")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindTooLarge, verr.Kind)
}

func TestVerifyDigestMismatch(t *testing.T) {
	v, err := New(1024, false, "")
	require.NoError(t, err)

	data := []byte("module bytes")
	err = v.Verify(data, digestHex([]byte("different bytes")), "")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindDigestMismatch, verr.Kind)
}

func TestVerifySignatureValid(t *testing.T) {
	priv, pubPEM := testKeyPair(t)
	v, err := New(1024, true, pubPEM)
	require.NoError(t, err)

	data := []byte("module bytes")
	sig := sign(t, priv, data)
	err = v.Verify(data, digestHex(data), sig)
	assert.NoError(t, err)
}

func TestVerifySignatureInvalid(t *testing.T) {
	priv, pubPEM := testKeyPair(t)
	_ = priv
	other, _ := rsa.GenerateKey(rand.Reader, 2048)

	v, err := New(1024, true, pubPEM)
	require.NoError(t, err)

	data := []byte("module bytes")
	badSig := sign(t, other, data)
	err = v.Verify(data, digestHex(data), badSig)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindSignatureInvalid, verr.Kind)
}

func TestVerifySignatureMissingWhenRequired(t *testing.T) {
	_, pubPEM := testKeyPair(t)
	v, err := New(1024, true, pubPEM)
	require.NoError(t, err)

	data := []byte("module bytes")
	err = v.Verify(data, digestHex(data), "")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindSignatureMissing, verr.Kind)
}

func TestVerifySignatureNotRequiredAndAbsent(t *testing.T) {
	_, pubPEM := testKeyPair(t)
	v, err := New(1024, false, pubPEM)
	require.NoError(t, err)

	data := []byte("module bytes")
	err = v.Verify(data, digestHex(data), "")
	assert.NoError(t, err)
}
