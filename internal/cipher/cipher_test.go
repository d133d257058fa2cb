package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	plain := []byte("hello blockvault")

	blob, err := Encrypt(plain, "correct horse", []byte("ctx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("BVLT"), blob[:4])
	assert.NotContains(t, string(blob), "hello")

	got, err := Decrypt(blob, "correct horse", []byte("ctx"))
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestCompressedRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("abcdefgh"), 4096)

	blob, err := Seal(plain, "pw", nil, Options{Compress: true})
	require.NoError(t, err)
	assert.Less(t, len(blob), len(plain)/4)

	got, err := Decrypt(blob, "pw", nil)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptFailures(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), "pw", []byte("aad"))
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong", []byte("aad"))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt(blob, "pw", []byte("other"))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt(blob, "pw", nil)
	assert.ErrorIs(t, err, ErrDecrypt)

	tampered := append([]byte(nil), blob...)
	tampered[5] ^= flagZstd
	_, err = Decrypt(tampered, "pw", []byte("aad"))
	assert.ErrorIs(t, err, ErrDecrypt, "header is authenticated")

	_, err = Decrypt(blob[:10], "pw", []byte("aad"))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt([]byte("not an envelope at all, definitely not"), "pw", nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := Encrypt([]byte("x"), "", nil)
	assert.Error(t, err)
}

func TestFreshSaltPerEnvelope(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pw", nil)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), "pw", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
