package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "labtrail/pkg/domain-errors"
)

// TestParseEntryID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseEntryID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEntryID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEntryID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseEntryID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseEntryID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, EntryID(valid), id)
	})
}

func TestParseEntryID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE audit_entries;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntryID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewEntryID_TimeOrdered(t *testing.T) {
	a := NewEntryID()
	b := NewEntryID()

	assert.False(t, a.IsNil())
	assert.Equal(t, uuid.Version(7), uuid.UUID(a).Version())
	assert.Less(t, a.String(), b.String())
}

func TestEntryID_JSON(t *testing.T) {
	id := NewEntryID()
	data, err := json.Marshal(struct {
		ID EntryID `json:"id"`
	}{ID: id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(data))

	var back struct {
		ID EntryID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back.ID)
}

func TestParseEntityType(t *testing.T) {
	got, err := ParseEntityType("  Invoice ")
	require.NoError(t, err)
	assert.Equal(t, EntityType("Invoice"), got)

	_, err = ParseEntityType("LabSample.v2")
	require.NoError(t, err, "unknown entity types are accepted")

	for _, bad := range []string{"", "   ", "Pa tient", "x;drop", strings.Repeat("a", 65)} {
		_, err := ParseEntityType(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "%q", bad)
	}
}
