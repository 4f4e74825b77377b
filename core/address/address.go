// Package address derives the deterministic record addresses used by the
// registry. Derivation is bit-for-bit compatible with Solana program derived
// addresses so that any client can locate a record without an index.
package address

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"aidledger/types/ids"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	NgoSeed   = []byte("ngo")
	BatchSeed = []byte("batch")
)

var (
	ErrMaxSeedLengthExceeded = errors.New("seed exceeds maximum length")
	ErrOnCurve               = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump          = errors.New("unable to find a viable bump seed")
	ErrAddressMismatch       = errors.New("record address does not match its seeds")
)

// Derived is an address together with the bump that produced it.
type Derived struct {
	Address ids.Pubkey `json:"address"`
	Bump    uint8      `json:"bump"`
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes the seeds with the program id. The result must
// fall off the curve so that no private key can sign for it.
func CreateProgramAddress(seeds [][]byte, programID ids.Pubkey) (ids.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return ids.Empty, fmt.Errorf("%w: %d seeds, max %d", ErrMaxSeedLengthExceeded, len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return ids.Empty, fmt.Errorf("%w: %d bytes", ErrMaxSeedLengthExceeded, len(s))
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out ids.Pubkey
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out[:]) {
		return ids.Empty, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress probes bumps from 255 down and returns the first
// off-curve address. The bump is appended as the final seed.
func FindProgramAddress(seeds [][]byte, programID ids.Pubkey) (Derived, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return Derived{Address: addr, Bump: uint8(bump)}, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Derived{}, err
		}
	}
	return Derived{}, ErrNoViableBump
}

// IndexSeed encodes a batch index the way clients do: 8 bytes little endian.
func IndexSeed(index uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], index)
	return b[:]
}

func ngoSeeds(admin ids.Pubkey) [][]byte {
	return [][]byte{NgoSeed, admin.Bytes()}
}

func batchSeeds(ngo ids.Pubkey, index uint64) [][]byte {
	return [][]byte{BatchSeed, ngo.Bytes(), IndexSeed(index)}
}

// NgoAddress derives the organization record address for an admin.
func NgoAddress(programID, admin ids.Pubkey) (Derived, error) {
	return FindProgramAddress(ngoSeeds(admin), programID)
}

// BatchAddress derives the address of batch index for an organization.
func BatchAddress(programID, ngo ids.Pubkey, index uint64) (Derived, error) {
	return FindProgramAddress(batchSeeds(ngo, index), programID)
}

// VerifyNgoAddress re-derives an organization address from its stored admin
// and bump without probing.
func VerifyNgoAddress(programID, admin ids.Pubkey, bump uint8, addr ids.Pubkey) error {
	seeds := append(ngoSeeds(admin), []byte{bump})
	got, err := CreateProgramAddress(seeds, programID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	if !bytes.Equal(got[:], addr[:]) {
		return ErrAddressMismatch
	}
	return nil
}
