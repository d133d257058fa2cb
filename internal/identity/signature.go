package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blockvault/internal/apperr"
)

const signatureLength = 65

var ErrInvalidSignature = apperr.New(apperr.InvalidInput, "invalid signature")

// DecodeSignature parses the 0x-prefixed hex string returned by
// personal_sign.
func DecodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidSignature, err)
	}
	if len(sig) != signatureLength {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// RecoverSigner returns the address that produced signature over the
// EIP-191 personal message hash of message.
func RecoverSigner(message string, signature []byte) (Address, error) {
	if len(signature) != signatureLength {
		return "", ErrInvalidSignature
	}

	sig := make([]byte, signatureLength)
	copy(sig, signature)
	// wallets emit V as 27/28, go-ethereum expects 0/1
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", apperr.Wrap(ErrInvalidSignature, err)
	}
	return Address(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// VerifySignedMessage reports whether claimed is the signer of message. An error is
// returned only when the signature itself cannot be recovered.
func VerifySignedMessage(message string, signature []byte, claimed Address) (bool, error) {
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return false, err
	}
	return signer.Equal(claimed), nil
}
