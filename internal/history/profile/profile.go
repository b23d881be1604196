// Package profile holds per-entity-type metadata: which fields are keyed
// collections, which paths are recorded, which are shown, and how they are
// labelled. Unknown entity types get an empty profile, so new record kinds
// work without code changes.
package profile

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"labtrail/pkg/changes"
	id "labtrail/pkg/domain"
)

// Profile describes one entity type.
type Profile struct {
	EntityType string `yaml:"entityType"`
	// WriteAllowlist restricts which paths are compared when recording.
	// Empty compares every path.
	WriteAllowlist []string `yaml:"writeAllowlist"`
	// DisplayFields restricts which paths are rendered. Entries match exactly
	// or as a dotted prefix. Empty shows every non-noise path.
	DisplayFields []string                 `yaml:"display"`
	Labels        map[string]string        `yaml:"labels"`
	Collections   []changes.CollectionSpec `yaml:"collections"`
}

// Displays reports whether path passes the display allow-list. Declared
// collections are always shown.
func (p Profile) Displays(path string) bool {
	if _, ok := p.Collection(path); ok {
		return true
	}
	if len(p.DisplayFields) == 0 {
		return true
	}
	for _, f := range p.DisplayFields {
		if path == f || strings.HasPrefix(path, f+".") {
			return true
		}
	}
	return false
}

// Label returns the configured label for path.
func (p Profile) Label(path string) (string, bool) {
	if l, ok := p.Labels[path]; ok && l != "" {
		return l, true
	}
	if c, ok := p.Collection(path); ok && c.Label != "" {
		return c.Label, true
	}
	return "", false
}

// Collection returns the collection declared for field.
func (p Profile) Collection(field string) (changes.CollectionSpec, bool) {
	for _, c := range p.Collections {
		if c.Field == field {
			return c, true
		}
	}
	return changes.CollectionSpec{}, false
}

func (p Profile) validate() error {
	if _, err := id.ParseEntityType(p.EntityType); err != nil {
		return fmt.Errorf("profile %q: %w", p.EntityType, err)
	}
	for _, c := range p.Collections {
		if c.Field == "" {
			return fmt.Errorf("profile %q: collection without field", p.EntityType)
		}
		if len(c.KeyFields) == 0 {
			return fmt.Errorf("profile %q: collection %q needs at least one key field", p.EntityType, c.Field)
		}
	}
	return nil
}

// Registry is a concurrency-safe set of profiles keyed by case-insensitive
// entity type.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a registry holding profiles. It panics on an invalid
// profile, so pass only literals.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds p, replacing any profile for the same entity type.
func (r *Registry) Register(p Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.EntityType = strings.TrimSpace(p.EntityType)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[strings.ToLower(p.EntityType)] = p
	return nil
}

// Lookup returns the profile for entityType, or an empty one.
func (r *Registry) Lookup(entityType string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[strings.ToLower(strings.TrimSpace(entityType))]; ok {
		return p
	}
	return Profile{EntityType: entityType}
}

// CollectionsFor returns the collection specs declared for entityType.
func (r *Registry) CollectionsFor(entityType string) []changes.CollectionSpec {
	return r.Lookup(entityType).Collections
}

// WriteAllowlist returns the recorded paths for entityType.
func (r *Registry) WriteAllowlist(entityType string) []string {
	return r.Lookup(entityType).WriteAllowlist
}

// EntityTypes lists the registered entity types in sorted order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.EntityType)
	}
	slices.Sort(out)
	return out
}
