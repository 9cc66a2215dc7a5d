package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque identifier. New IDs are UUIDv7 and sort by creation time.
type ID string

func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

func (id ID) String() string { return string(id) }

func (id ID) IsEmpty() bool { return id == "" }

// RunID identifies one pipeline run
type RunID ID

func NewRunID() RunID { return RunID(NewID()) }

func (id RunID) String() string { return ID(id).String() }

// ParseRunID accepts any UUID form and returns it canonicalized.
func ParseRunID(s string) (RunID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: run id %q", ErrInvalidInput, s)
	}
	return RunID(u.String()), nil
}
