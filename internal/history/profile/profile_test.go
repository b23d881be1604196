package profile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labtrail/pkg/changes"
)

func TestProfile_Displays(t *testing.T) {
	p := Invoice()

	assert.True(t, p.Displays("department"))
	assert.True(t, p.Displays("payment.totalAmount"))
	assert.True(t, p.Displays("tests"), "declared collections are shown")
	assert.False(t, p.Displays("payment.gatewayRef"))
	assert.False(t, p.Displays("departmentCode"))

	empty := Profile{EntityType: "Sample"}
	assert.True(t, empty.Displays("anything.at.all"))
}

func TestProfile_DisplayPrefix(t *testing.T) {
	p := Patient()
	assert.True(t, p.Displays("address.city"))
	assert.False(t, p.Displays("addressProof"))
}

func TestProfile_Label(t *testing.T) {
	p := Invoice()

	label, ok := p.Label("payment.totalAmount")
	require.True(t, ok)
	assert.Equal(t, "Total Amount", label)

	label, ok = p.Label("tests")
	require.True(t, ok)
	assert.Equal(t, "Tests", label)

	_, ok = p.Label("department")
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := Builtin()

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		assert.Equal(t, "Invoice", r.Lookup("invoice").EntityType)
		assert.Len(t, r.CollectionsFor("INVOICE"), 1)
	})

	t.Run("unknown types get an empty profile", func(t *testing.T) {
		p := r.Lookup("Prescription")
		assert.Equal(t, "Prescription", p.EntityType)
		assert.Empty(t, p.Collections)
		assert.Empty(t, r.WriteAllowlist("Prescription"))
	})

	t.Run("register replaces", func(t *testing.T) {
		r := Builtin()
		require.NoError(t, r.Register(Profile{EntityType: "invoice", DisplayFields: []string{"department"}}))
		assert.Empty(t, r.CollectionsFor("Invoice"))
	})

	t.Run("invalid profiles are rejected", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.Register(Profile{EntityType: ""}))
		assert.Error(t, r.Register(Profile{
			EntityType:  "Invoice",
			Collections: []changes.CollectionSpec{{Field: "tests"}},
		}))
	})

	t.Run("entity types are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"Appointment", "Invoice", "Patient", "Report"}, r.EntityTypes())
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := Builtin()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(Profile{EntityType: "Sample"})
		}()
		go func() {
			defer wg.Done()
			_ = r.CollectionsFor("Invoice")
		}()
	}
	wg.Wait()
}

const profilesYAML = `
profiles:
  - entityType: Prescription
    writeAllowlist: [items, doctor]
    display: [doctor, items]
    labels:
      doctor: Prescribing Doctor
    collections:
      - field: items
        label: Medicines
        key: [drugId, name]
        signature: [dose, days]
        name: [name]
`

func TestParse(t *testing.T) {
	profiles, err := Parse([]byte(profilesYAML))
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "Prescription", p.EntityType)
	assert.Equal(t, []string{"items", "doctor"}, p.WriteAllowlist)
	assert.Equal(t, "Prescribing Doctor", p.Labels["doctor"])
	require.Len(t, p.Collections, 1)
	assert.Equal(t, []string{"drugId", "name"}, p.Collections[0].KeyFields)
	assert.Equal(t, []string{"dose", "days"}, p.Collections[0].SignatureFields)
	assert.Equal(t, "Medicines", p.Collections[0].Label)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("profiles: [{entityType: 'bad type!'}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("profiles: {"))
	assert.Error(t, err)
}

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o600))

	r := Builtin()
	require.NoError(t, r.LoadFile(path))
	assert.Len(t, r.CollectionsFor("prescription"), 1)
	assert.Len(t, r.CollectionsFor("Invoice"), 1)

	assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
