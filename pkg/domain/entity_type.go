package domain

import (
	"strings"
	"unicode"

	dErrors "labtrail/pkg/domain-errors"
)

// EntityType names a kind of record ("Patient", "Invoice", ...). The set is
// open: any well-formed name is accepted, so new record kinds need no code
// change.
type EntityType string

const maxEntityTypeLen = 64

// ParseEntityType trims s and checks it is a non-empty identifier made of
// letters, digits, '_', '-' or '.'.
func ParseEntityType(s string) (EntityType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity type is required")
	}
	if len(s) > maxEntityTypeLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity type is too long")
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' {
			continue
		}
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity type contains invalid characters")
	}
	return EntityType(s), nil
}

func (t EntityType) String() string { return string(t) }
