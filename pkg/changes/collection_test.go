package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItem struct {
	ID   int
	Name string
	Qty  int
	Cost float64
}

type lineSig struct {
	Qty  int
	Cost float64
}

func itemKey(i lineItem) int     { return i.ID }
func itemSig(i lineItem) lineSig { return lineSig{Qty: i.Qty, Cost: i.Cost} }

func TestDiffCollection_Classification(t *testing.T) {
	before := []lineItem{{ID: 1, Name: "CBC", Qty: 1, Cost: 100}}
	after := []lineItem{
		{ID: 1, Name: "CBC", Qty: 2, Cost: 100},
		{ID: 2, Name: "LFT", Qty: 1, Cost: 300},
	}

	got := DiffCollection(before, after, itemKey, itemSig)

	assert.Equal(t, []lineItem{{ID: 2, Name: "LFT", Qty: 1, Cost: 300}}, got.Added)
	assert.Equal(t, []lineItem{{ID: 1, Name: "CBC", Qty: 2, Cost: 100}}, got.Modified)
	assert.Empty(t, got.Removed)
}

func TestDiffCollection_Removed(t *testing.T) {
	before := []lineItem{{ID: 1, Name: "CBC"}, {ID: 2, Name: "LFT"}, {ID: 3, Name: "KFT"}}
	after := []lineItem{{ID: 2, Name: "LFT"}}

	got := DiffCollection(before, after, itemKey, itemSig)

	assert.Equal(t, []lineItem{{ID: 1, Name: "CBC"}, {ID: 3, Name: "KFT"}}, got.Removed)
	assert.Empty(t, got.Added)
	assert.Empty(t, got.Modified)
}

func TestDiffCollection_PermutationIsNoChange(t *testing.T) {
	items := []lineItem{
		{ID: 1, Name: "CBC", Qty: 1, Cost: 100},
		{ID: 2, Name: "LFT", Qty: 1, Cost: 300},
		{ID: 3, Name: "KFT", Qty: 2, Cost: 250},
	}
	perms := [][]lineItem{
		{items[2], items[0], items[1]},
		{items[1], items[2], items[0]},
		{items[2], items[1], items[0]},
	}
	for _, p := range perms {
		got := DiffCollection(items, p, itemKey, itemSig)
		assert.True(t, got.Empty(), "permutation %v", p)
	}
}

func TestDiffCollection_SignatureIgnoresOtherFields(t *testing.T) {
	before := []lineItem{{ID: 1, Name: "CBC", Qty: 1, Cost: 100}}
	after := []lineItem{{ID: 1, Name: "Complete Blood Count", Qty: 1, Cost: 100}}

	got := DiffCollection(before, after, itemKey, itemSig)
	assert.True(t, got.Empty())
}

// Duplicate identities keep the last item seen on each side.
func TestDiffCollection_DuplicateKeysLastWins(t *testing.T) {
	t.Run("duplicate before", func(t *testing.T) {
		before := []lineItem{{ID: 1, Qty: 1}, {ID: 1, Qty: 5}}
		after := []lineItem{{ID: 1, Qty: 5}}

		got := DiffCollection(before, after, itemKey, itemSig)
		assert.True(t, got.Empty())
	})

	t.Run("duplicate after", func(t *testing.T) {
		before := []lineItem{{ID: 1, Qty: 1}}
		after := []lineItem{{ID: 1, Qty: 2}, {ID: 1, Qty: 1}}

		got := DiffCollection(before, after, itemKey, itemSig)
		assert.True(t, got.Empty())
	})

	t.Run("last duplicate decides modification", func(t *testing.T) {
		before := []lineItem{{ID: 1, Qty: 1}}
		after := []lineItem{{ID: 1, Qty: 1}, {ID: 1, Qty: 3}}

		got := DiffCollection(before, after, itemKey, itemSig)
		assert.Equal(t, []lineItem{{ID: 1, Qty: 3}}, got.Modified)
		assert.Empty(t, got.Added)
	})
}

func TestCollectionSpec(t *testing.T) {
	spec := CollectionSpec{
		Field:           "tests",
		KeyFields:       []string{"testId", "name"},
		SignatureFields: []string{"qty", "cost", "discount"},
		NameFields:      []string{"name"},
	}

	t.Run("falls back to the next key field", func(t *testing.T) {
		a := FromAny(map[string]any{"name": "  CBC "})
		b := FromAny(map[string]any{"name": "cbc"})
		assert.Equal(t, spec.Key(a), spec.Key(b))

		withID := FromAny(map[string]any{"testId": "T-9", "name": "CBC"})
		assert.Equal(t, "testId=t-9", spec.Key(withID))
	})

	t.Run("classifies record items", func(t *testing.T) {
		before := FromAny([]any{
			map[string]any{"testId": "a", "name": "CBC", "qty": 1, "cost": 100, "updatedAt": "x"},
			map[string]any{"testId": "b", "name": "LFT", "qty": 1, "cost": 300},
		})
		after := FromAny([]any{
			map[string]any{"testId": "b", "name": "LFT", "qty": 1, "cost": 280},
			map[string]any{"testId": "a", "name": "CBC", "qty": 1, "cost": 100, "updatedAt": "y"},
			map[string]any{"testId": "c", "name": "TSH", "qty": 1, "cost": 400},
		})

		got := spec.Diff(before, after)

		require.Len(t, got.Added, 1)
		assert.Equal(t, "TSH", spec.Name(got.Added[0]))
		assert.Empty(t, got.Removed)
		require.Len(t, got.Modified, 1)
		assert.Equal(t, "300", got.Modified[0].Before.Lookup("cost").String())
		assert.Equal(t, "280", got.Modified[0].After.Lookup("cost").String())
	})

	t.Run("missing side is an empty collection", func(t *testing.T) {
		after := FromAny([]any{map[string]any{"testId": "a", "name": "CBC"}})
		got := spec.Diff(Absent(), after)
		assert.Len(t, got.Added, 1)

		got = spec.Diff(after, String("not a list"))
		assert.Len(t, got.Removed, 1)
	})

	t.Run("names fall back to the key", func(t *testing.T) {
		assert.Equal(t, "T-2", spec.Name(FromAny(map[string]any{"testId": "T-2"})))
	})
}
