package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidEntry matches every *ValidationError.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrIntegrity marks an entry whose content does not match its id or
	// signature.
	ErrIntegrity = errors.New("integrity mismatch")

	// ErrUnsigned marks an unsigned entry where a signature is required.
	ErrUnsigned = errors.New("entry is not signed")

	// ErrNonMonotonic marks an entry that would break its author's
	// counter/timestamp history.
	ErrNonMonotonic = errors.New("author history is not monotonic")

	// ErrPushRefused is returned by a peer that does not accept entries.
	ErrPushRefused = errors.New("peer does not accept pushes")
)

// ValidationError describes a schema failure on a single field.
type ValidationError struct {
	MessageID string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("invalid entry: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid entry %s: %s %s", e.MessageID, e.Field, e.Reason)
}

// Is enables errors.Is matching against ErrInvalidEntry.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEntry
}

// Rejection records why an entry was refused at the ingestion boundary.
type Rejection struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}
