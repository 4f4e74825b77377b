package core

import (
	"bytes"
	"errors"
	"fmt"

	"aidledger/types/ids"
)

// A message starts with the program id followed by the signing identity.
const (
	programIDOffset  = 0
	signerOffset     = ids.PubkeyLen
	MessageHeaderLen = 2 * ids.PubkeyLen
)

var (
	ErrMissingSignature = errors.New("missing or invalid signature")
	ErrMessageTooShort  = errors.New("message too short")
	ErrSignerMismatch   = errors.New("keypair does not match message signer")
)

// Transaction is a signed instruction message.
type Transaction struct {
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
}

// MessageHeader returns the fixed prefix every message carries.
func MessageHeader(programID, signer ids.Pubkey) []byte {
	buf := make([]byte, 0, MessageHeaderLen)
	buf = append(buf, programID[:]...)
	return append(buf, signer[:]...)
}

// ProgramID reads the target program from the message.
func (tx *Transaction) ProgramID() (ids.Pubkey, error) {
	if len(tx.Message) < MessageHeaderLen {
		return ids.Empty, ErrMessageTooShort
	}
	return ids.FromBytes(tx.Message[programIDOffset:signerOffset])
}

// Signer reads the claimed caller identity from the message.
func (tx *Transaction) Signer() (ids.Pubkey, error) {
	if len(tx.Message) < MessageHeaderLen {
		return ids.Empty, ErrMessageTooShort
	}
	return ids.FromBytes(tx.Message[signerOffset:MessageHeaderLen])
}

// Body is everything after the header.
func (tx *Transaction) Body() []byte {
	if len(tx.Message) < MessageHeaderLen {
		return nil
	}
	return tx.Message[MessageHeaderLen:]
}

// SignTransaction signs msg with kp. The keypair must be the signer named in
// the message header.
func SignTransaction(kp *Keypair, msg []byte) (*Transaction, error) {
	tx := &Transaction{Message: msg}
	signer, err := tx.Signer()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(signer[:], kp.Public[:]) {
		return nil, fmt.Errorf("%w: message names %s, keypair is %s", ErrSignerMismatch, signer, kp.Public)
	}
	tx.Signature = kp.Sign(msg)
	return tx, nil
}

// VerifyTransaction checks that the signer in the header signed the message
// and returns that identity.
func VerifyTransaction(tx *Transaction) (ids.Pubkey, error) {
	signer, err := tx.Signer()
	if err != nil {
		return ids.Empty, err
	}
	if !Verify(signer, tx.Message, tx.Signature) {
		return ids.Empty, fmt.Errorf("%w for %s", ErrMissingSignature, signer)
	}
	return signer, nil
}
