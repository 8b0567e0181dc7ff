package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnknownEntityType   = errors.New("unknown entity type")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrDuplicateWebhook    = errors.New("duplicate webhook")
	ErrConcurrentUpdate    = errors.New("transaction was updated concurrently")
)

// InvalidTransitionError is returned when a structurally illegal status
// transition is requested. Callers usually convert it to a boolean result;
// the typed error is for callers that want to propagate it.
type InvalidTransitionError struct {
	EntityType string
	EntityID   string
	From       string
	To         string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s for %s: %s",
		e.EntityType, e.From, e.To, e.EntityID, e.Reason)
}

// EngineError marks internal invariant violations (saga with zero steps,
// unknown type for saga planning). These are configuration errors and
// propagate to the caller; no automatic recovery is meaningful.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
