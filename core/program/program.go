// Package program implements the two state transitions of the registry: the
// identity registrar (register_ngo) and the batch committer (submit_batch).
// All state lives in the addressed store; the program itself holds none.
package program

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"aidledger/core"
	"aidledger/core/audit"
	"aidledger/core/metrics"
	"aidledger/core/notify"
	"aidledger/core/state"
	"aidledger/core/storage"
	"aidledger/types/ids"
)

// DefaultProgramID is the id the registry was first deployed under.
var DefaultProgramID = ids.MustFromBase58("4wcEn4cPenW3GM1eYfNoAHsmnN1SPNLnLqSCtBruaobD")

// Store is the record store the program runs against.
type Store interface {
	Get(addr ids.Pubkey) ([]byte, error)
	Update(fn func(tx *storage.Tx) error) error
	Scan(fn func(addr ids.Pubkey, data []byte) bool) error
	Events(from uint64, limit int) ([]storage.EventRecord, error)
}

// Publisher receives committed events.
type Publisher interface {
	Publish(n notify.Notification)
}

type Options struct {
	ProgramID ids.Pubkey
	// Now is the hosting environment's clock. Defaults to time.Now.
	Now       func() time.Time
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Audit     audit.AuditLogger
	Publisher Publisher
}

type Program struct {
	store     Store
	programID ids.Pubkey
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	audit     audit.AuditLogger
	publisher Publisher
}

func New(store Store, opts Options) *Program {
	p := &Program{
		store:     store,
		programID: opts.ProgramID,
		now:       opts.Now,
		logger:    opts.Logger.With().Str("component", "program").Logger(),
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		publisher: opts.Publisher,
	}
	if p.programID.IsZero() {
		p.programID = DefaultProgramID
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.audit == nil {
		p.audit = audit.NopAuditLogger{}
	}
	return p
}

func (p *Program) ProgramID() ids.Pubkey { return p.programID }

// Receipt describes a committed instruction.
type Receipt struct {
	Instruction string                `json:"instruction"`
	Signer      ids.Pubkey            `json:"signer"`
	Address     ids.Pubkey            `json:"address"`
	Ngo         *state.Ngo            `json:"ngo,omitempty"`
	Batch       *state.Batch          `json:"batch,omitempty"`
	Event       *state.BatchSubmitted `json:"event,omitempty"`
	EventSeq    *uint64               `json:"event_seq,omitempty"`
}

// Execute verifies a signed transaction and dispatches its instruction with
// the signer as caller identity.
func (p *Program) Execute(tx *core.Transaction) (*Receipt, error) {
	signer, err := core.VerifyTransaction(tx)
	if err != nil {
		return nil, p.reject("unknown", signer, ErrMissingSignature.wrap(err))
	}
	pid, err := tx.ProgramID()
	if err != nil || pid != p.programID {
		return nil, p.reject("unknown", signer, ErrProgramIDMismatch)
	}
	ins, err := DecodeInstruction(tx.Body())
	if err != nil {
		return nil, p.reject("unknown", signer, err)
	}
	switch ins := ins.(type) {
	case RegisterNgo:
		return p.RegisterNgo(signer, ins.MetadataURI)
	case SubmitBatch:
		return p.SubmitBatch(signer, ins)
	default:
		return nil, p.reject("unknown", signer, ErrInstructionFallbackNotFound)
	}
}

// allocate creates addr holding the bytes encode returns. An occupied address
// is reported before any field bound is checked.
func allocate(tx *storage.Tx, addr ids.Pubkey, encode func() ([]byte, error)) error {
	_, err := tx.Get(addr)
	switch {
	case err == nil:
		return ErrDuplicateAllocation.wrap(storage.ErrAccountInUse)
	case !errors.Is(err, storage.ErrAccountNotFound):
		return err
	}
	data, err := encode()
	if err != nil {
		if errors.Is(err, state.ErrOversizedField) {
			return ErrOversizedField.wrap(err)
		}
		return err
	}
	if err := tx.Create(addr, data); err != nil {
		if errors.Is(err, storage.ErrAccountInUse) {
			return ErrDuplicateAllocation.wrap(err)
		}
		return err
	}
	return nil
}

func (p *Program) reject(instruction string, signer ids.Pubkey, err error) error {
	name := Name(err)
	p.metrics.RecordInstruction(instruction, name)
	code, _ := Code(err)
	p.logger.Warn().
		Err(err).
		Str("instruction", instruction).
		Str("signer", signer.String()).
		Uint32("code", code).
		Msg("instruction rejected")
	return err
}

func (p *Program) commit(r *Receipt) {
	p.metrics.RecordInstruction(r.Instruction, "ok")
	ev := p.logger.Info().
		Str("instruction", r.Instruction).
		Str("signer", r.Signer.String()).
		Str("address", r.Address.String())
	if r.Batch != nil {
		ev = ev.Uint64("batch_index", r.Batch.BatchIndex).Str("ngo", r.Batch.Ngo.String())
	}
	ev.Msg("instruction committed")
}
