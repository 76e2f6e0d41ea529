// Package identity defines the addresses, key pairs and program-derived
// authorities used by the staking ledger.
//
// An Address is the SHA-256 of a compressed secp256k1 public key, or, for
// accounts owned by the program itself, an HKDF-SHA256 derivation over the
// program ID and a list of seeds. Addresses render as base58.
package identity

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/mr-tron/base58"
)

// AddressSize is the length of an Address in bytes.
const AddressSize = 32

// Address identifies an account holder, a token mint or a program-owned account.
type Address [AddressSize]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// AddressOf returns the address controlled by pub.
func AddressOf(pub *ec.PublicKey) Address {
	return Address(sha256.Sum256(pub.Compressed()))
}

// AddressOfSeed returns the SHA-256 of seed, for fixed well-known addresses
// such as program IDs and test mints.
func AddressOfSeed(seed string) Address {
	return Address(sha256.Sum256([]byte(seed)))
}

// AddressFromBytes copies b into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return AddressFromBytes(b)
}

// String returns the base58 form.
func (a Address) String() string { return base58.Encode(a[:]) }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// IsZero reports whether a is the unset address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int { return bytes.Compare(a[:], b[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
