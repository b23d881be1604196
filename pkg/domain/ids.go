package domain

import (
	"github.com/google/uuid"

	dErrors "labtrail/pkg/domain-errors"
)

// EntryID identifies a stored audit entry. IDs are UUIDv7 so they sort by
// creation time.
type EntryID uuid.UUID

// NewEntryID returns a time-ordered ID, falling back to a random one if the
// v7 generator fails.
func NewEntryID() EntryID {
	if u, err := uuid.NewV7(); err == nil {
		return EntryID(u)
	}
	return EntryID(uuid.New())
}

// ParseEntryID parses a non-nil UUID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s)
	return EntryID(u), err
}

func (id EntryID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether id is the zero UUID.
func (id EntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText encodes id in its canonical string form.
func (id EntryID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText decodes the canonical string form.
func (id *EntryID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid entry id")
	}
	*id = EntryID(u)
	return nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return u, nil
}
