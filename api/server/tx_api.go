package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"aidledger/core"
	"aidledger/core/address"
	"aidledger/core/program"
	"aidledger/core/validation"
	"aidledger/types/ids"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Message string  `json:"message"`
	Code    *uint32 `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, msg string, code *uint32) {
	writeJSON(w, status, ErrorResponse{Error: name, Message: msg, Code: code})
}

// writeProgramError maps a registry error onto an HTTP status.
func writeProgramError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validation.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "InvalidPayload", err.Error(), nil)
		return
	case errors.Is(err, program.ErrMissingSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, program.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, program.ErrDuplicateAllocation):
		status = http.StatusConflict
	case errors.Is(err, program.ErrOversizedField):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, program.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, program.ErrProgramIDMismatch),
		errors.Is(err, program.ErrInstructionFallbackNotFound),
		errors.Is(err, program.ErrInstructionDidNotDeserialize),
		errors.Is(err, program.ErrConstraintSeeds),
		errors.Is(err, program.ErrAccountDiscriminatorMismatch),
		errors.Is(err, program.ErrAccountDidNotDeserialize):
		status = http.StatusBadRequest
	}
	code, ok := program.Code(err)
	if !ok {
		writeError(w, status, "Internal", "internal error", nil)
		return
	}
	writeError(w, status, program.Name(err), err.Error(), &code)
}

func (s *Server) readTransaction(w http.ResponseWriter, r *http.Request) (*core.Transaction, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "BodyTooLarge", err.Error(), nil)
		return nil, false
	}
	tx, err := s.validator.DecodeTransaction(body)
	if err != nil {
		writeProgramError(w, err)
		return nil, false
	}
	return tx, true
}

// handleSubmitTx executes a signed register_ngo or submit_batch transaction.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.readTransaction(w, r)
	if !ok {
		return
	}
	receipt, err := s.prog.Execute(tx)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// InspectResponse describes a transaction without executing it.
type InspectResponse struct {
	Signer        ids.Pubkey          `json:"signer"`
	ProgramID     ids.Pubkey          `json:"program_id"`
	SignatureOK   bool                `json:"signature_ok"`
	Instruction   string              `json:"instruction"`
	Args          program.Instruction `json:"args"`
	TargetAddress ids.Pubkey          `json:"target_address"`
}

// handleInspectTx decodes a transaction and reports where it would write.
func (s *Server) handleInspectTx(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.readTransaction(w, r)
	if !ok {
		return
	}
	signer, _ := tx.Signer()
	pid, _ := tx.ProgramID()
	_, verr := core.VerifyTransaction(tx)

	ins, err := program.DecodeInstruction(tx.Body())
	if err != nil {
		writeProgramError(w, err)
		return
	}
	resp := InspectResponse{
		Signer:      signer,
		ProgramID:   pid,
		SignatureOK: verr == nil,
		Instruction: ins.Name(),
		Args:        ins,
	}
	var derived address.Derived
	switch ins := ins.(type) {
	case program.RegisterNgo:
		derived, err = address.NgoAddress(pid, signer)
	case program.SubmitBatch:
		derived, err = address.BatchAddress(pid, ins.Ngo, ins.BatchIndex)
	}
	if err != nil {
		writeProgramError(w, program.ErrConstraintSeeds)
		return
	}
	resp.TargetAddress = derived.Address
	writeJSON(w, http.StatusOK, resp)
}

func retryAfter(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
