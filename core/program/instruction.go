package program

import (
	"fmt"

	"aidledger/core"
	"aidledger/core/state"
	"aidledger/types/ids"
)

// Instruction names as they appear in logs, metrics and discriminators.
const (
	RegisterNgoName = "register_ngo"
	SubmitBatchName = "submit_batch"
)

var (
	registerNgoDiscriminator = state.InstructionDiscriminator(RegisterNgoName)
	submitBatchDiscriminator = state.InstructionDiscriminator(SubmitBatchName)
)

// Instruction is one of RegisterNgo or SubmitBatch.
type Instruction interface {
	Name() string
	accounts() []ids.Pubkey
	data() ([]byte, error)
}

// RegisterNgo creates the caller's organization record.
type RegisterNgo struct {
	MetadataURI string `json:"metadata_uri"`
}

func (RegisterNgo) Name() string { return RegisterNgoName }

func (RegisterNgo) accounts() []ids.Pubkey { return nil }

func (r RegisterNgo) data() ([]byte, error) {
	e := state.NewEncoder(registerNgoDiscriminator, 0)
	e.String("metadata_uri", r.MetadataURI, -1)
	return e.Finish(0)
}

// SubmitBatch commits a batch for the organization at Ngo.
type SubmitBatch struct {
	Ngo        ids.Pubkey       `json:"ngo"`
	BatchIndex uint64           `json:"batch_index"`
	MerkleRoot state.MerkleRoot `json:"merkle_root"`
	DataURI    string           `json:"data_uri"`
	Region     string           `json:"region"`
	ProgramTag string           `json:"program_tag"`
	StartTime  int64            `json:"start_time"`
	EndTime    int64            `json:"end_time"`
}

func (SubmitBatch) Name() string { return SubmitBatchName }

func (s SubmitBatch) accounts() []ids.Pubkey { return []ids.Pubkey{s.Ngo} }

func (s SubmitBatch) data() ([]byte, error) {
	e := state.NewEncoder(submitBatchDiscriminator, 0)
	e.U64(s.BatchIndex)
	e.Bytes32(s.MerkleRoot)
	e.String("data_uri", s.DataURI, -1)
	e.String("region", s.Region, -1)
	e.String("program_tag", s.ProgramTag, -1)
	e.I64(s.StartTime)
	e.I64(s.EndTime)
	return e.Finish(0)
}

// EncodeMessage builds the bytes the caller signs:
// program id ‖ signer ‖ u8 account count ‖ accounts ‖ instruction data.
func EncodeMessage(programID, signer ids.Pubkey, ins Instruction) ([]byte, error) {
	data, err := ins.data()
	if err != nil {
		return nil, err
	}
	accts := ins.accounts()
	msg := core.MessageHeader(programID, signer)
	msg = append(msg, byte(len(accts)))
	for _, a := range accts {
		msg = append(msg, a[:]...)
	}
	return append(msg, data...), nil
}

// NewTransaction encodes and signs ins with kp.
func NewTransaction(kp *core.Keypair, programID ids.Pubkey, ins Instruction) (*core.Transaction, error) {
	msg, err := EncodeMessage(programID, kp.Public, ins)
	if err != nil {
		return nil, err
	}
	return core.SignTransaction(kp, msg)
}

// DecodeInstruction parses the body of a message (everything after the header).
func DecodeInstruction(body []byte) (Instruction, error) {
	if len(body) < 1 {
		return nil, ErrInstructionDidNotDeserialize
	}
	n := int(body[0])
	body = body[1:]
	if len(body) < n*ids.PubkeyLen+state.DiscriminatorLen {
		return nil, ErrInstructionDidNotDeserialize
	}
	accts := make([]ids.Pubkey, n)
	for i := range accts {
		copy(accts[i][:], body[i*ids.PubkeyLen:])
	}
	data := body[n*ids.PubkeyLen:]

	switch state.Discriminator(data[:state.DiscriminatorLen]) {
	case registerNgoDiscriminator:
		if n != 0 {
			return nil, ErrInstructionDidNotDeserialize.wrap(fmt.Errorf("register_ngo takes no accounts, got %d", n))
		}
		d, _ := state.NewDecoder(data, registerNgoDiscriminator)
		ins := RegisterNgo{MetadataURI: d.String()}
		if err := finishDecode(d); err != nil {
			return nil, err
		}
		return ins, nil
	case submitBatchDiscriminator:
		if n != 1 {
			return nil, ErrInstructionDidNotDeserialize.wrap(fmt.Errorf("submit_batch takes 1 account, got %d", n))
		}
		d, _ := state.NewDecoder(data, submitBatchDiscriminator)
		ins := SubmitBatch{
			Ngo:        accts[0],
			BatchIndex: d.U64(),
			MerkleRoot: d.Bytes32(),
			DataURI:    d.String(),
			Region:     d.String(),
			ProgramTag: d.String(),
			StartTime:  d.I64(),
			EndTime:    d.I64(),
		}
		if err := finishDecode(d); err != nil {
			return nil, err
		}
		return ins, nil
	default:
		return nil, ErrInstructionFallbackNotFound
	}
}

func finishDecode(d *state.Decoder) error {
	if err := d.Err(); err != nil {
		return ErrInstructionDidNotDeserialize.wrap(err)
	}
	if len(d.Remaining()) != 0 {
		return ErrInstructionDidNotDeserialize.wrap(fmt.Errorf("%d trailing bytes", len(d.Remaining())))
	}
	return nil
}
