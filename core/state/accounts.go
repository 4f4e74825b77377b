// Package state defines the organization and batch records, the event the
// committer emits, and their fixed-size persisted layout.
package state

import (
	"encoding/hex"

	"aidledger/types/ids"
)

// Byte bounds of the variable-length fields.
const (
	MaxMetadataURILen = 256
	MaxDataURILen     = 256
	MaxRegionLen      = 64
	MaxProgramTagLen  = 64
)

const (
	NgoMaxSize = DiscriminatorLen +
		32 + // admin
		4 + MaxMetadataURILen +
		1 + // is_active
		1 + // bump
		8 // created_at

	BatchMaxSize = DiscriminatorLen +
		32 + // ngo
		8 + // batch_index
		32 + // merkle_root
		4 + MaxDataURILen +
		4 + MaxRegionLen +
		4 + MaxProgramTagLen +
		8 + // start_time
		8 + // end_time
		1 + // is_flagged
		1 // bump
)

var (
	NgoDiscriminator            = AccountDiscriminator("Ngo")
	BatchDiscriminator          = AccountDiscriminator("Batch")
	BatchSubmittedDiscriminator = EventDiscriminator("BatchSubmitted")
)

// Kind names a record type recognised by its discriminator.
type Kind string

const (
	KindNgo     Kind = "ngo"
	KindBatch   Kind = "batch"
	KindUnknown Kind = "unknown"
)

// KindOf classifies raw account data.
func KindOf(data []byte) Kind {
	if len(data) < DiscriminatorLen {
		return KindUnknown
	}
	switch Discriminator(data[:DiscriminatorLen]) {
	case NgoDiscriminator:
		return KindNgo
	case BatchDiscriminator:
		return KindBatch
	default:
		return KindUnknown
	}
}

// MerkleRoot is a 32-byte commitment stored opaquely.
type MerkleRoot [32]byte

func (m MerkleRoot) String() string { return hex.EncodeToString(m[:]) }

func (m MerkleRoot) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MerkleRoot) UnmarshalText(text []byte) error {
	root, err := ParseMerkleRoot(string(text))
	if err != nil {
		return err
	}
	*m = root
	return nil
}

// ParseMerkleRoot decodes a 64-character hex root.
func ParseMerkleRoot(s string) (MerkleRoot, error) {
	var root MerkleRoot
	raw, err := hex.DecodeString(s)
	if err != nil {
		return root, err
	}
	if len(raw) != len(root) {
		return root, hex.ErrLength
	}
	copy(root[:], raw)
	return root, nil
}

// Ngo is the organization record, one per admin identity.
type Ngo struct {
	Admin       ids.Pubkey `json:"admin"`
	MetadataURI string     `json:"metadata_uri"`
	IsActive    bool       `json:"is_active"`
	Bump        uint8      `json:"bump"`
	CreatedAt   int64      `json:"created_at"`
}

// MarshalAccount encodes the record into its full NgoMaxSize allocation.
func (n *Ngo) MarshalAccount() ([]byte, error) {
	e := NewEncoder(NgoDiscriminator, NgoMaxSize)
	e.Pubkey(n.Admin)
	e.String("metadata_uri", n.MetadataURI, MaxMetadataURILen)
	e.Bool(n.IsActive)
	e.U8(n.Bump)
	e.I64(n.CreatedAt)
	return e.Finish(NgoMaxSize)
}

func UnmarshalNgo(data []byte) (*Ngo, error) {
	d, err := NewDecoder(data, NgoDiscriminator)
	if err != nil {
		return nil, err
	}
	n := &Ngo{
		Admin:       d.Pubkey(),
		MetadataURI: d.String(),
		IsActive:    d.Bool(),
		Bump:        d.U8(),
		CreatedAt:   d.I64(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return n, nil
}

// Batch is one committed unit of disbursement data for an organization.
type Batch struct {
	Ngo        ids.Pubkey `json:"ngo"`
	BatchIndex uint64     `json:"batch_index"`
	MerkleRoot MerkleRoot `json:"merkle_root"`
	DataURI    string     `json:"data_uri"`
	Region     string     `json:"region"`
	ProgramTag string     `json:"program_tag"`
	StartTime  int64      `json:"start_time"`
	EndTime    int64      `json:"end_time"`
	IsFlagged  bool       `json:"is_flagged"`
	Bump       uint8      `json:"bump"`
}

// MarshalAccount encodes the record into its full BatchMaxSize allocation.
func (b *Batch) MarshalAccount() ([]byte, error) {
	e := NewEncoder(BatchDiscriminator, BatchMaxSize)
	e.Pubkey(b.Ngo)
	e.U64(b.BatchIndex)
	e.Bytes32(b.MerkleRoot)
	e.String("data_uri", b.DataURI, MaxDataURILen)
	e.String("region", b.Region, MaxRegionLen)
	e.String("program_tag", b.ProgramTag, MaxProgramTagLen)
	e.I64(b.StartTime)
	e.I64(b.EndTime)
	e.Bool(b.IsFlagged)
	e.U8(b.Bump)
	return e.Finish(BatchMaxSize)
}

func UnmarshalBatch(data []byte) (*Batch, error) {
	d, err := NewDecoder(data, BatchDiscriminator)
	if err != nil {
		return nil, err
	}
	b := &Batch{
		Ngo:        d.Pubkey(),
		BatchIndex: d.U64(),
		MerkleRoot: d.Bytes32(),
		DataURI:    d.String(),
		Region:     d.String(),
		ProgramTag: d.String(),
		StartTime:  d.I64(),
		EndTime:    d.I64(),
		IsFlagged:  d.Bool(),
		Bump:       d.U8(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// BatchSubmitted lets off-chain observers index a batch without reading it.
type BatchSubmitted struct {
	Ngo        ids.Pubkey `json:"ngo"`
	BatchIndex uint64     `json:"batch_index"`
	MerkleRoot MerkleRoot `json:"merkle_root"`
}

// MarshalEvent encodes the event without padding.
func (ev *BatchSubmitted) MarshalEvent() ([]byte, error) {
	e := NewEncoder(BatchSubmittedDiscriminator, DiscriminatorLen+32+8+32)
	e.Pubkey(ev.Ngo)
	e.U64(ev.BatchIndex)
	e.Bytes32(ev.MerkleRoot)
	return e.Finish(0)
}

func UnmarshalBatchSubmitted(data []byte) (*BatchSubmitted, error) {
	d, err := NewDecoder(data, BatchSubmittedDiscriminator)
	if err != nil {
		return nil, err
	}
	ev := &BatchSubmitted{
		Ngo:        d.Pubkey(),
		BatchIndex: d.U64(),
		MerkleRoot: d.Bytes32(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}
