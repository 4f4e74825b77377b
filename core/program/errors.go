package program

import (
	"errors"
	"fmt"
)

// Error is a registry failure with a stable numeric code. Codes follow the
// Anchor framework numbering so existing wallet tooling can decode them.
type Error struct {
	Code  uint32
	Name  string
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Name, e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is matches any *Error with the same code, so wrapped copies still compare
// equal to the exported sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) wrap(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

var (
	ErrInstructionFallbackNotFound  = &Error{Code: 101, Name: "InstructionFallbackNotFound", Msg: "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &Error{Code: 102, Name: "InstructionDidNotDeserialize", Msg: "The program could not deserialize the given instruction"}
	ErrConstraintSeeds              = &Error{Code: 2006, Name: "ConstraintSeeds", Msg: "A seeds constraint was violated"}
	ErrAccountDiscriminatorMismatch = &Error{Code: 3002, Name: "AccountDiscriminatorMismatch", Msg: "Account discriminator did not match what was expected"}
	ErrAccountDidNotDeserialize     = &Error{Code: 3003, Name: "AccountDidNotDeserialize", Msg: "Failed to deserialize the account"}
	ErrOversizedField               = &Error{Code: 3004, Name: "OversizedField", Msg: "A field exceeds its fixed byte bound"}
	ErrMissingSignature             = &Error{Code: 3010, Name: "AccountNotSigner", Msg: "The given account did not sign"}
	ErrAccountNotFound              = &Error{Code: 3012, Name: "AccountNotInitialized", Msg: "The program expected this account to be already initialized"}
	ErrProgramIDMismatch            = &Error{Code: 4100, Name: "DeclaredProgramIdMismatch", Msg: "The declared program id does not match the actual program id"}
	ErrUnauthorized                 = &Error{Code: 6000, Name: "Unauthorized", Msg: "Unauthorized"}
	// The system program reports an occupied address as custom error 0.
	ErrDuplicateAllocation = &Error{Code: 0, Name: "DuplicateAllocation", Msg: "Allocate: account already in use"}
)

// Code extracts the numeric code from err, reporting false when err is not
// a registry error.
func Code(err error) (uint32, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Name returns the error name used in metrics and API responses.
func Name(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return "Internal"
}
