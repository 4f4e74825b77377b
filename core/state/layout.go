package state

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"aidledger/types/ids"
)

const DiscriminatorLen = 8

var (
	ErrOversizedField           = errors.New("field exceeds its fixed byte bound")
	ErrDiscriminatorMismatch    = errors.New("account discriminator did not match")
	ErrAccountDidNotDeserialize = errors.New("failed to deserialize the account")
)

// Discriminator is the 8-byte type tag at the head of every encoded record.
type Discriminator [DiscriminatorLen]byte

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// AccountDiscriminator tags persisted records: sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) Discriminator { return discriminator("account", name) }

// EventDiscriminator tags emitted events.
func EventDiscriminator(name string) Discriminator { return discriminator("event", name) }

// InstructionDiscriminator tags instruction data.
func InstructionDiscriminator(name string) Discriminator { return discriminator("global", name) }

// Encoder writes the little-endian, length-prefixed layout.
type Encoder struct {
	buf []byte
	err error
}

func NewEncoder(d Discriminator, capacity int) *Encoder {
	e := &Encoder{buf: make([]byte, 0, capacity)}
	e.buf = append(e.buf, d[:]...)
	return e
}

func (e *Encoder) Pubkey(pk ids.Pubkey) { e.buf = append(e.buf, pk[:]...) }

func (e *Encoder) Bytes32(b [32]byte) { e.buf = append(e.buf, b[:]...) }

func (e *Encoder) U8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) Bool(v bool) {
	if v {
		e.U8(1)
		return
	}
	e.U8(0)
}

func (e *Encoder) U64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *Encoder) I64(v int64) { e.U64(uint64(v)) }

// String writes a u32 length prefix and the raw bytes, failing once the
// value is longer than max. A negative max means unbounded.
func (e *Encoder) String(field, v string, max int) {
	if e.err != nil {
		return
	}
	if max >= 0 && len(v) > max {
		e.err = fmt.Errorf("%w: %s is %d bytes, max %d", ErrOversizedField, field, len(v), max)
		return
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// Finish pads the buffer with zeros to size. size <= 0 leaves it unpadded.
func (e *Encoder) Finish(size int) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if size > 0 {
		if len(e.buf) > size {
			return nil, fmt.Errorf("%w: encoded %d bytes into %d byte allocation", ErrOversizedField, len(e.buf), size)
		}
		e.buf = append(e.buf, make([]byte, size-len(e.buf))...)
	}
	return e.buf, nil
}

// Decoder reads the layout written by Encoder.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder checks the discriminator and positions after it.
func NewDecoder(data []byte, want Discriminator) (*Decoder, error) {
	if len(data) < DiscriminatorLen {
		return nil, ErrAccountDidNotDeserialize
	}
	if Discriminator(data[:DiscriminatorLen]) != want {
		return nil, ErrDiscriminatorMismatch
	}
	return &Decoder{buf: data, off: DiscriminatorLen}, nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = ErrAccountDidNotDeserialize
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *Decoder) Pubkey() ids.Pubkey {
	var pk ids.Pubkey
	copy(pk[:], d.take(ids.PubkeyLen))
	return pk
}

func (d *Decoder) Bytes32() [32]byte {
	var b [32]byte
	copy(b[:], d.take(32))
	return b
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Bool() bool { return d.U8() != 0 }

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) I64() int64 { return int64(d.U64()) }

func (d *Decoder) String() string {
	b := d.take(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(n) > uint64(len(d.buf)) {
		d.err = ErrAccountDidNotDeserialize
		return ""
	}
	return string(d.take(int(n)))
}

// Err reports the first read past the end of the buffer.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the unread tail.
func (d *Decoder) Remaining() []byte {
	if d.off >= len(d.buf) {
		return nil
	}
	return d.buf[d.off:]
}
