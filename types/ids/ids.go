package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLen is the size of an identity or derived address in bytes.
const PubkeyLen = 32

// Pubkey is a 32-byte public identity or derived record address.
type Pubkey [PubkeyLen]byte

// Empty is the zero-value Pubkey (all zeros)
var Empty Pubkey

// NewID generates an opaque id by hashing input bytes
func NewID(data []byte) Pubkey {
	return Pubkey(sha256.Sum256(data))
}

// FromBytes copies a 32-byte slice into a Pubkey.
func FromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLen {
		return pk, fmt.Errorf("invalid pubkey length %d, want %d", len(b), PubkeyLen)
	}
	copy(pk[:], b)
	return pk, nil
}

// FromBase58 parses the base58 text form used by every client.
func FromBase58(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Empty, fmt.Errorf("decode base58 pubkey %q: %w", s, err)
	}
	return FromBytes(raw)
}

// FromHex parses a hex string into a Pubkey
func FromHex(s string) (Pubkey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Empty, err
	}
	return FromBytes(raw)
}

// MustFromBase58 is FromBase58 for compile-time constants.
func MustFromBase58(s string) Pubkey {
	pk, err := FromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

func (pk Pubkey) Hex() string {
	return hex.EncodeToString(pk[:])
}

func (pk Pubkey) Bytes() []byte {
	return pk[:]
}

func (pk Pubkey) IsZero() bool {
	return pk == Empty
}

// MarshalText encodes the key as base58 so JSON carries the familiar form.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := FromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
