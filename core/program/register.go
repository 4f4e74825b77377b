package program

import (
	"aidledger/core/address"
	"aidledger/core/audit"
	"aidledger/core/state"
	"aidledger/core/storage"
	"aidledger/types/ids"
)

// RegisterNgo creates the organization record for admin at
// ["ngo", admin]. A second call for the same admin fails with
// ErrDuplicateAllocation and leaves the first record untouched.
func (p *Program) RegisterNgo(admin ids.Pubkey, metadataURI string) (*Receipt, error) {
	derived, err := address.NgoAddress(p.programID, admin)
	if err != nil {
		return nil, p.reject(RegisterNgoName, admin, ErrConstraintSeeds.wrap(err))
	}

	ngo := &state.Ngo{
		Admin:       admin,
		MetadataURI: metadataURI,
		IsActive:    true,
		Bump:        derived.Bump,
		CreatedAt:   p.now().Unix(),
	}
	err = p.store.Update(func(tx *storage.Tx) error {
		return allocate(tx, derived.Address, ngo.MarshalAccount)
	})
	if err != nil {
		p.audit.LogEvent(audit.AuditEvent{
			EventType: "RegisterNgo",
			EntityID:  admin.String(),
			Result:    audit.ResultFailure,
			Reason:    Name(err),
			Metadata:  map[string]string{"ngo": derived.Address.String()},
		})
		return nil, p.reject(RegisterNgoName, admin, err)
	}

	p.audit.LogEvent(audit.AuditEvent{
		EventType: "RegisterNgo",
		EntityID:  admin.String(),
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"ngo": derived.Address.String()},
	})
	r := &Receipt{
		Instruction: RegisterNgoName,
		Signer:      admin,
		Address:     derived.Address,
		Ngo:         ngo,
	}
	p.commit(r)
	return r, nil
}
