// Package identity validates wallet addresses and recovers signers of
// EIP-191 personal messages.
package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockvault/internal/apperr"
)

// Address is a 20-byte wallet address in EIP-55 checksummed form. Values of
// this type are only produced by Normalize, so two Addresses compare equal
// exactly when they name the same account.
type Address string

func (a Address) String() string {
	return string(a)
}

// Equal compares two addresses case-insensitively.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

var ErrInvalidAddress = apperr.New(apperr.InvalidInput, "invalid address")

// Normalize validates a 0x-prefixed 40 hex digit address and returns its
// checksummed form.
func Normalize(address string) (Address, error) {
	address = strings.TrimSpace(address)
	if len(address) != 42 || !(strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X")) {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return Address(common.HexToAddress(address).Hex()), nil
}

// MustNormalize is Normalize for constants and tests.
func MustNormalize(address string) Address {
	a, err := Normalize(address)
	if err != nil {
		panic(err)
	}
	return a
}
