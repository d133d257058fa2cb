// Package keywrap encrypts a file passphrase for one recipient under the
// recipient's RSA public key.
package keywrap

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/blockvault/internal/apperr"
)

// MinKeyBits is the smallest accepted modulus.
const MinKeyBits = 2048

var (
	ErrInvalidKey        = apperr.New(apperr.InvalidInput, "invalid RSA public key")
	ErrPassphraseTooLong = apperr.New(apperr.InvalidInput, "passphrase too long for recipient key")
)

// ParsePublicKey accepts "PUBLIC KEY" (PKIX) and "RSA PUBLIC KEY" (PKCS#1)
// PEM blocks.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, apperr.Wrap(ErrInvalidKey, fmt.Errorf("no PEM block"))
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, apperr.Wrap(ErrInvalidKey, err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, apperr.Wrap(ErrInvalidKey, fmt.Errorf("not an RSA key"))
		}
		pub = rsaKey
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, apperr.Wrap(ErrInvalidKey, err)
		}
		pub = key
	default:
		return nil, apperr.Wrap(ErrInvalidKey, fmt.Errorf("unexpected PEM type %q", block.Type))
	}

	if pub.N.BitLen() < MinKeyBits {
		return nil, apperr.Wrap(ErrInvalidKey, fmt.Errorf("key is %d bits, need %d", pub.N.BitLen(), MinKeyBits))
	}
	return pub, nil
}

// EncryptPassphrase returns base64(RSA-OAEP(SHA-256, MGF1-SHA-256, passphrase)).
func EncryptPassphrase(pemText, passphrase string) (string, error) {
	pub, err := ParsePublicKey(pemText)
	if err != nil {
		return "", err
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(passphrase), nil)
	if errors.Is(err, rsa.ErrMessageTooLong) {
		return "", ErrPassphraseTooLong
	}
	if err != nil {
		return "", fmt.Errorf("oaep encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptPassphrase reverses EncryptPassphrase. Recipients normally do this
// client-side; the server uses it only in tests and tooling.
func DecryptPassphrase(priv *rsa.PrivateKey, encoded string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncodePublicKey renders pub as a PKIX PEM block.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
