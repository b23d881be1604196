package changes

import (
	"slices"
	"strings"
)

// Change is one detected difference. Scalar changes carry Before/After;
// collection changes carry Collection and leave Before/After absent.
type Change struct {
	Path       string            `json:"path"`
	Before     Value             `json:"before,omitzero"`
	After      Value             `json:"after,omitzero"`
	Collection *CollectionChange `json:"collection,omitempty"`
}

// IsCollection reports whether c is a collection marker.
func (c Change) IsCollection() bool { return c.Collection != nil }

// Diff is the ordered list of changes in detection order. Order matters for
// display only.
type Diff []Change

// Get returns the change recorded for path.
func (d Diff) Get(path string) (Change, bool) {
	for _, c := range d {
		if c.Path == path {
			return c, true
		}
	}
	return Change{}, false
}

// Clone returns a copy of d that shares no slices with it. Values are
// immutable and are shared.
func (d Diff) Clone() Diff {
	if d == nil {
		return nil
	}
	out := make(Diff, len(d))
	for i, c := range d {
		if c.Collection != nil {
			cc := CollectionChange{
				Added:    slices.Clone(c.Collection.Added),
				Removed:  slices.Clone(c.Collection.Removed),
				Modified: slices.Clone(c.Collection.Modified),
			}
			c.Collection = &cc
		}
		out[i] = c
	}
	return out
}

// Paths returns the changed paths in order.
func (d Diff) Paths() []string {
	out := make([]string, len(d))
	for i, c := range d {
		out[i] = c.Path
	}
	return out
}

// Options tunes BuildDiff.
type Options struct {
	// Allowlist restricts scalar comparison to these paths. An entry also
	// covers every path nested under it ("payment" covers
	// "payment.totalAmount"). Empty means every path of either snapshot.
	Allowlist []string
	// Collections are diffed by identity and reported under their field path.
	// They are compared even when Allowlist is set.
	Collections []CollectionSpec
}

// BuildDiff flattens both snapshots and reports every path whose normalized
// values differ. A path present on one side only is reported with the other
// side Absent.
func BuildDiff(before, after Value, opts Options) Diff {
	b := Flatten(before)
	a := Flatten(after)

	var out Diff
	for _, path := range unionPaths(b, a) {
		if coveredBy(path, opts.Collections) {
			continue
		}
		if len(opts.Allowlist) > 0 && !allowed(path, opts.Allowlist) {
			continue
		}
		bv, _ := b.Get(path)
		av, _ := a.Get(path)
		if Equal(bv, av) {
			continue
		}
		out = append(out, Change{Path: path, Before: bv, After: av})
	}

	for _, spec := range opts.Collections {
		cc := spec.Diff(before.Lookup(spec.Field), after.Lookup(spec.Field))
		if cc.Empty() {
			continue
		}
		out = append(out, Change{Path: spec.Field, Collection: &cc})
	}
	return out
}

// BuildDiffAny converts both snapshots with FromAny before diffing.
func BuildDiffAny(before, after any, opts Options) Diff {
	return BuildDiff(FromAny(before), FromAny(after), opts)
}

func unionPaths(b, a Flat) []string {
	paths := make([]string, 0, b.Len()+a.Len())
	paths = append(paths, b.Paths()...)
	for _, p := range a.Paths() {
		if !b.Has(p) {
			paths = append(paths, p)
		}
	}
	return paths
}

func allowed(path string, allowlist []string) bool {
	for _, entry := range allowlist {
		if pathWithin(path, entry) {
			return true
		}
	}
	return false
}

func coveredBy(path string, specs []CollectionSpec) bool {
	for _, s := range specs {
		if pathWithin(path, s.Field) {
			return true
		}
	}
	return false
}

// pathWithin reports whether path equals root or is nested under it.
func pathWithin(path, root string) bool {
	if root == "" {
		return false
	}
	return path == root || strings.HasPrefix(path, root+".")
}
