package program

import (
	"errors"
	"strconv"

	"aidledger/core/address"
	"aidledger/core/audit"
	"aidledger/core/notify"
	"aidledger/core/state"
	"aidledger/core/storage"
	"aidledger/types/ids"
)

// SubmitBatch commits batch args.BatchIndex for the organization at args.Ngo.
// The caller must be the organization's admin. The batch record and its
// BatchSubmitted event are written in one store transaction.
func (p *Program) SubmitBatch(caller ids.Pubkey, args SubmitBatch) (*Receipt, error) {
	derived, err := address.BatchAddress(p.programID, args.Ngo, args.BatchIndex)
	if err != nil {
		return nil, p.reject(SubmitBatchName, caller, ErrConstraintSeeds.wrap(err))
	}

	batch := &state.Batch{
		Ngo:        args.Ngo,
		BatchIndex: args.BatchIndex,
		MerkleRoot: args.MerkleRoot,
		DataURI:    args.DataURI,
		Region:     args.Region,
		ProgramTag: args.ProgramTag,
		StartTime:  args.StartTime,
		EndTime:    args.EndTime,
		IsFlagged:  false,
		Bump:       derived.Bump,
	}
	event := &state.BatchSubmitted{
		Ngo:        args.Ngo,
		BatchIndex: args.BatchIndex,
		MerkleRoot: args.MerkleRoot,
	}

	var seq uint64
	err = p.store.Update(func(tx *storage.Tx) error {
		if err := p.checkAdmin(tx, caller, args.Ngo); err != nil {
			return err
		}
		if err := allocate(tx, derived.Address, batch.MarshalAccount); err != nil {
			return err
		}
		data, err := event.MarshalEvent()
		if err != nil {
			return err
		}
		seq, err = tx.Emit(data)
		return err
	})
	meta := map[string]string{
		"ngo":         args.Ngo.String(),
		"batch_index": strconv.FormatUint(args.BatchIndex, 10),
	}
	if err != nil {
		eventType := "SubmitBatch"
		if errors.Is(err, ErrUnauthorized) {
			eventType = "Authorization"
		}
		p.audit.LogEvent(audit.AuditEvent{
			EventType: eventType,
			EntityID:  caller.String(),
			Result:    audit.ResultFailure,
			Reason:    Name(err),
			Metadata:  meta,
		})
		return nil, p.reject(SubmitBatchName, caller, err)
	}

	p.audit.LogEvent(audit.AuditEvent{
		EventType: "SubmitBatch",
		EntityID:  caller.String(),
		Result:    audit.ResultSuccess,
		Metadata:  meta,
	})
	if p.publisher != nil {
		p.publisher.Publish(notify.Notification{Seq: seq, Event: *event})
	}
	r := &Receipt{
		Instruction: SubmitBatchName,
		Signer:      caller,
		Address:     derived.Address,
		Batch:       batch,
		Event:       event,
		EventSeq:    &seq,
	}
	p.commit(r)
	return r, nil
}

// checkAdmin loads the organization at ngoAddr, confirms the record sits at
// the address its own seeds produce, and that caller is its admin.
func (p *Program) checkAdmin(tx *storage.Tx, caller, ngoAddr ids.Pubkey) error {
	data, err := tx.Get(ngoAddr)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound.wrap(err)
		}
		return err
	}
	ngo, err := state.UnmarshalNgo(data)
	if err != nil {
		if errors.Is(err, state.ErrDiscriminatorMismatch) {
			return ErrAccountDiscriminatorMismatch.wrap(err)
		}
		return ErrAccountDidNotDeserialize.wrap(err)
	}
	if err := address.VerifyNgoAddress(p.programID, ngo.Admin, ngo.Bump, ngoAddr); err != nil {
		return ErrConstraintSeeds.wrap(err)
	}
	if ngo.Admin != caller {
		return ErrUnauthorized
	}
	return nil
}
