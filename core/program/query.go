package program

import (
	"errors"
	"fmt"

	"aidledger/core/address"
	"aidledger/core/state"
	"aidledger/core/storage"
	"aidledger/types/ids"
)

// AccountInfo is a decoded record together with its address.
type AccountInfo struct {
	Address ids.Pubkey   `json:"address"`
	Kind    state.Kind   `json:"kind"`
	Ngo     *state.Ngo   `json:"ngo,omitempty"`
	Batch   *state.Batch `json:"batch,omitempty"`
}

// EventInfo is a decoded entry of the event log.
type EventInfo struct {
	Seq   uint64               `json:"seq"`
	Event state.BatchSubmitted `json:"event"`
}

func (p *Program) GetNgo(addr ids.Pubkey) (*state.Ngo, error) {
	data, err := p.store.Get(addr)
	if err != nil {
		return nil, lookupErr(err)
	}
	ngo, err := state.UnmarshalNgo(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	return ngo, nil
}

// GetNgoByAdmin resolves the organization registered by admin.
func (p *Program) GetNgoByAdmin(admin ids.Pubkey) (ids.Pubkey, *state.Ngo, error) {
	derived, err := address.NgoAddress(p.programID, admin)
	if err != nil {
		return ids.Empty, nil, ErrConstraintSeeds.wrap(err)
	}
	ngo, err := p.GetNgo(derived.Address)
	return derived.Address, ngo, err
}

func (p *Program) GetBatch(addr ids.Pubkey) (*state.Batch, error) {
	data, err := p.store.Get(addr)
	if err != nil {
		return nil, lookupErr(err)
	}
	b, err := state.UnmarshalBatch(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	return b, nil
}

// GetBatchByIndex resolves batch index of the organization at ngo.
func (p *Program) GetBatchByIndex(ngo ids.Pubkey, index uint64) (ids.Pubkey, *state.Batch, error) {
	derived, err := address.BatchAddress(p.programID, ngo, index)
	if err != nil {
		return ids.Empty, nil, ErrConstraintSeeds.wrap(err)
	}
	b, err := p.GetBatch(derived.Address)
	return derived.Address, b, err
}

// ListAccounts decodes every stored record, optionally filtered to one kind.
// An empty kind lists everything.
func (p *Program) ListAccounts(kind state.Kind) ([]AccountInfo, error) {
	var (
		out     []AccountInfo
		scanErr error
	)
	err := p.store.Scan(func(addr ids.Pubkey, data []byte) bool {
		k := state.KindOf(data)
		if kind != "" && k != kind {
			return true
		}
		info := AccountInfo{Address: addr, Kind: k}
		switch k {
		case state.KindNgo:
			info.Ngo, scanErr = state.UnmarshalNgo(data)
		case state.KindBatch:
			info.Batch, scanErr = state.UnmarshalBatch(data)
		}
		if scanErr != nil {
			scanErr = fmt.Errorf("decode %s: %w", addr, scanErr)
			return false
		}
		out = append(out, info)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, scanErr
}

// Events returns up to limit BatchSubmitted events starting at sequence from.
func (p *Program) Events(from uint64, limit int) ([]EventInfo, error) {
	recs, err := p.store.Events(from, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EventInfo, 0, len(recs))
	for _, r := range recs {
		ev, err := state.UnmarshalBatchSubmitted(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", r.Seq, err)
		}
		out = append(out, EventInfo{Seq: r.Seq, Event: *ev})
	}
	return out, nil
}

func lookupErr(err error) error {
	if errors.Is(err, storage.ErrAccountNotFound) {
		return ErrAccountNotFound.wrap(err)
	}
	return err
}

func decodeErr(err error) error {
	if errors.Is(err, state.ErrDiscriminatorMismatch) {
		return ErrAccountDiscriminatorMismatch.wrap(err)
	}
	return ErrAccountDidNotDeserialize.wrap(err)
}
