package autotransfer

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("autotransfer: validation failed")
	// ErrStateConflict matches every *TransitionError.
	ErrStateConflict = errors.New("autotransfer: state conflict")
	// ErrNotFound is returned when a contract is absent from the store.
	ErrNotFound = errors.New("autotransfer: not found")
	// ErrDuplicateContract is returned when an owner already has an active or suspended contract on the source account.
	ErrDuplicateContract = errors.New("autotransfer: open contract already exists for account")
	// ErrNilContract is returned when saving or transitioning a nil contract.
	ErrNilContract = errors.New("autotransfer: nil contract")
	// ErrNilExecution is returned when saving a nil execution record.
	ErrNilExecution = errors.New("autotransfer: nil execution")
	// ErrForbidden is returned when the caller does not own the contract.
	ErrForbidden = errors.New("autotransfer: forbidden")
	// ErrContractBusy is returned when another writer holds the contract lock.
	ErrContractBusy = errors.New("autotransfer: contract busy")
)

// ValidationError reports invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "autotransfer: " + e.Message
	}
	return fmt.Sprintf("autotransfer: %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError reports an illegal lifecycle transition.
type TransitionError struct {
	Transition Transition
	From       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("autotransfer: cannot %s contract in status %s", e.Transition, e.From)
}

// Is makes errors.Is(err, ErrStateConflict) true.
func (e *TransitionError) Is(target error) bool { return target == ErrStateConflict }
