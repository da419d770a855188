package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID is a sortable unique identifier for server-generated records.
type ID string

// NewID generates a fresh ID.
func NewID() ID {
	return ID(ksuid.New().String())
}

// ParseID validates a serialized ID.
func ParseID(s string) (ID, error) {
	if _, err := ksuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }
