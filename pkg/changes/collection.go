package changes

import (
	"strings"
)

// Collection is the classified difference between two versions of a keyed
// collection. Modified holds the after-state of each changed item.
type Collection[T any] struct {
	Added    []T
	Removed  []T
	Modified []T
}

// Empty reports whether nothing was added, removed or modified.
func (c Collection[T]) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// DiffCollection matches items by identity rather than position. key derives
// an item's identity; sig derives the subset of fields that decide whether a
// matched item changed. Reordering alone never produces a change.
//
// When key maps two items on the same side to one identity, the last item
// wins. Earlier duplicates are not reported.
func DiffCollection[T any, K comparable, S comparable](before, after []T, key func(T) K, sig func(T) S) Collection[T] {
	m := matchItems(before, after, key, sig)
	out := Collection[T]{Added: m.added, Removed: m.removed}
	for _, p := range m.modified {
		out.Modified = append(out.Modified, p.after)
	}
	return out
}

type itemPair[T any] struct {
	before T
	after  T
}

type matchResult[T any] struct {
	added    []T
	removed  []T
	modified []itemPair[T]
}

func matchItems[T any, K comparable, S comparable](before, after []T, key func(T) K, sig func(T) S) matchResult[T] {
	beforeByKey, beforeKeys := indexItems(before, key)
	afterByKey, afterKeys := indexItems(after, key)

	var res matchResult[T]
	for _, k := range beforeKeys {
		if _, ok := afterByKey[k]; !ok {
			res.removed = append(res.removed, beforeByKey[k])
		}
	}
	for _, k := range afterKeys {
		a := afterByKey[k]
		b, ok := beforeByKey[k]
		if !ok {
			res.added = append(res.added, a)
			continue
		}
		if sig(b) != sig(a) {
			res.modified = append(res.modified, itemPair[T]{before: b, after: a})
		}
	}
	return res
}

// indexItems builds key -> item with last-write-wins and remembers the order
// in which keys were first seen.
func indexItems[T any, K comparable](items []T, key func(T) K) (map[K]T, []K) {
	byKey := make(map[K]T, len(items))
	order := make([]K, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = item
	}
	return byKey, order
}

// -----------------------------------------------------------------------------
// Collections of records
// -----------------------------------------------------------------------------

// CollectionSpec declares a field whose value is an array of sub-records that
// must be diffed by identity, such as the billed tests on an invoice.
type CollectionSpec struct {
	// Field is the dot-path of the array inside the snapshot.
	Field string `yaml:"field" json:"field"`
	// Label is the display name of the synthesized change rows.
	Label string `yaml:"label" json:"label,omitempty"`
	// KeyFields are tried in order; the first non-empty one is the identity.
	KeyFields []string `yaml:"key" json:"key,omitempty"`
	// SignatureFields decide whether a matched item changed. Empty means the
	// whole item is compared.
	SignatureFields []string `yaml:"signature" json:"signature,omitempty"`
	// NameFields are tried in order to name an item for display.
	NameFields []string `yaml:"name" json:"name,omitempty"`
}

// ItemChange pairs the two versions of a modified collection item.
type ItemChange struct {
	Before Value `json:"before"`
	After  Value `json:"after"`
}

// CollectionChange is the stored form of a collection diff.
type CollectionChange struct {
	Added    []Value      `json:"added,omitempty"`
	Removed  []Value      `json:"removed,omitempty"`
	Modified []ItemChange `json:"modified,omitempty"`
}

// Empty reports whether the change carries no items.
func (c CollectionChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Key derives the identity of item. Strings are trimmed and lower-cased so
// "CBC " and "cbc" match. Items with no usable key field fall back to their
// canonical form.
func (s CollectionSpec) Key(item Value) string {
	for _, f := range s.KeyFields {
		v := item.Lookup(f)
		if v.IsEmpty() {
			continue
		}
		if str, ok := v.AsString(); ok {
			return f + "=" + strings.ToLower(strings.TrimSpace(str))
		}
		return f + "=" + v.Canonical()
	}
	return item.Canonical()
}

// Signature derives the comparable tuple of fields that matter for change
// detection.
func (s CollectionSpec) Signature(item Value) string {
	if len(s.SignatureFields) == 0 {
		return item.Canonical()
	}
	var b strings.Builder
	for i, f := range s.SignatureFields {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(item.Lookup(f).Canonical())
	}
	return b.String()
}

// Name returns a display name for item, falling back to its key.
func (s CollectionSpec) Name(item Value) string {
	for _, f := range s.NameFields {
		v := item.Lookup(f)
		if !v.IsEmpty() {
			return v.String()
		}
	}
	for _, f := range s.KeyFields {
		v := item.Lookup(f)
		if !v.IsEmpty() {
			return v.String()
		}
	}
	return item.String()
}

// Diff compares two values of the collection field. A side that is missing
// or not an array counts as an empty collection.
func (s CollectionSpec) Diff(before, after Value) CollectionChange {
	m := matchItems(before.Items(), after.Items(), s.Key, s.Signature)
	out := CollectionChange{Added: m.added, Removed: m.removed}
	for _, p := range m.modified {
		out.Modified = append(out.Modified, ItemChange{Before: p.before, After: p.after})
	}
	return out
}
