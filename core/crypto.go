package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aidledger/types/ids"
)

// Keypair is an ed25519 identity. The public half is the caller identity the
// registry binds organizations to.
type Keypair struct {
	Public  ids.Pubkey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh random identity.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return keypairFrom(pub, priv)
}

// KeypairFromSeed derives a deterministic identity from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return keypairFrom(priv.Public().(ed25519.PublicKey), priv)
}

func keypairFrom(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Keypair, error) {
	pk, err := ids.FromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: pk, Private: priv}, nil
}

// SaveKeypair writes the keypair as a JSON array of the 64 private key bytes,
// the layout solana-keygen uses, so wallets are interchangeable.
func SaveKeypair(path string, kp *Keypair) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing keypair %s", path)
	}
	ints := make([]int, len(kp.Private))
	for i, b := range kp.Private {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeypair reads a keypair written by SaveKeypair or solana-keygen.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair %s has %d bytes, want %d", path, len(ints), ed25519.PrivateKeySize)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, errors.New("keypair byte out of range")
		}
		raw[i] = byte(v)
	}
	kp, err := KeypairFromSeed(raw[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.Private) != string(raw) {
		return nil, fmt.Errorf("keypair %s: public key does not match secret", path)
	}
	return kp, nil
}

// Sign signs the message with the private key
func (kp *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(kp.Private, msg)
}

// Verify verifies the signature with the given public key
func Verify(pub ids.Pubkey, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
