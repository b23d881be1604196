package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseEntryID checks that parsing never panics and that accepted IDs
// round-trip.
func FuzzParseEntryID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE audit_entries;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseEntryID(input)
		if err == nil {
			roundTrip, err2 := ParseEntryID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseEntityType checks that accepted entity types are stable under
// re-parsing.
func FuzzParseEntityType(f *testing.F) {
	f.Add("Patient")
	f.Add(" Invoice ")
	f.Add("")
	f.Add("a b")

	f.Fuzz(func(t *testing.T, input string) {
		et, err := ParseEntityType(input)
		if err != nil {
			return
		}
		again, err := ParseEntityType(et.String())
		if err != nil || again != et {
			t.Errorf("entity type %q not stable: %q %v", et, again, err)
		}
	})
}
