package shared

import "errors"

// Error kinds returned to callers as machine-readable codes.
const (
	KindValidation        = "validation"
	KindDuplicateKey      = "duplicate_key"
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindInsufficientStock = "insufficient_stock"
	KindConflict          = "conflict"
	KindInternal          = "internal"
)

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateKey indicates a unique document number or key already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition occurs when a status change is not in the entity's transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock occurs when a ledger pair cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates the request is valid but clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrInternal marks unexpected failures.
	ErrInternal = errors.New("internal error")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, KindValidation},
	{ErrDuplicateKey, KindDuplicateKey},
	{ErrNotFound, KindNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrConflict, KindConflict},
}

// KindOf classifies err. Anything outside the taxonomy is internal.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
