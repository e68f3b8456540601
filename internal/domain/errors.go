package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Operation failures. Callers classify with errors.Is.
var (
	ErrBelowMinimum             = errors.New("below minimum transaction value")
	ErrUnsupportedAsset         = errors.New("unsupported asset")
	ErrQuoteUnavailable         = errors.New("quote unavailable")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientAssetBalance = errors.New("insufficient asset balance")
	ErrSelfTransfer             = errors.New("cannot transfer to self")
	ErrRecipientNotFound        = errors.New("recipient not found")
	ErrInternalPersistence      = errors.New("internal persistence error")

	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Store-level failures. They always surface to engine callers as ErrInternalPersistence.
var (
	ErrOutOfScope    = errors.New("row is outside the transaction lock scope")
	ErrTxDone        = errors.New("transaction already committed or rolled back")
	ErrNegativeValue = errors.New("negative balance or quantity")
)

// PersistenceError wraps a store failure. The store guarantees that nothing
// of the failed transaction was applied.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err unless it is nil or already a PersistenceError.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInternalPersistence, e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrInternalPersistence, e.Err}
}

var kinds = []struct {
	err  error
	code string
}{
	{ErrBelowMinimum, "below_minimum"},
	{ErrUnsupportedAsset, "unsupported_asset"},
	{ErrQuoteUnavailable, "quote_unavailable"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInsufficientAssetBalance, "insufficient_asset_balance"},
	{ErrSelfTransfer, "self_transfer"},
	{ErrRecipientNotFound, "recipient_not_found"},
	{ErrInternalPersistence, "internal_persistence_error"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidIdentity, "invalid_identity"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountExists, "account_exists"},
}

// Kind returns a stable code for err, "ok" for nil and "unknown" otherwise.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "unknown"
}
