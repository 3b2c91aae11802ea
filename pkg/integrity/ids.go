package integrity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/guildofsmiths/cord/pkg/model"
)

// IDGenerator assigns a message id to a freshly built entry.
type IDGenerator interface {
	NewID(e model.Entry) (string, error)
}

// RandomIDs generates time-sortable UUIDv7 ids. Safe for concurrent use.
type RandomIDs struct{}

// NewID ignores the entry content.
func (RandomIDs) NewID(model.Entry) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("uuid: %w", err)
	}
	return id.String(), nil
}

// ContentIDs derives ids from entry content, so the same logical event built
// twice yields the same id.
type ContentIDs struct{}

// NewID returns ContentID(e).
func (ContentIDs) NewID(e model.Entry) (string, error) { return ContentID(e) }
