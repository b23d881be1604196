// Package audit holds the append-only change record and the contract its
// stores implement.
package audit

import (
	"maps"
	"slices"
	"strings"
	"time"

	"labtrail/pkg/changes"
	id "labtrail/pkg/domain"
	dErrors "labtrail/pkg/domain-errors"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ParseAction accepts the three actions case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "action must be CREATE, UPDATE or DELETE")
}

// Actor attributes an entry to whoever performed the mutation. Every field
// is optional; attribution is best-effort.
type Actor struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
}

// IsZero reports whether no attribution is known.
func (a Actor) IsZero() bool {
	return a.UserID == "" && a.Role == "" && a.Name == ""
}

// Entry is an immutable record of one mutating operation.
//
// Diff is empty for CREATE and DELETE. For UPDATE it holds only paths whose
// normalized values differ, plus collection markers. EntityID is stringified
// once when the entry is built and never reinterpreted. At is assigned by the
// recorder, never by the caller.
type Entry struct {
	ID         id.EntryID     `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     Action         `json:"action"`
	Actor      Actor          `json:"actor,omitzero"`
	Diff       changes.Diff   `json:"diff,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	At         time.Time      `json:"at"`
}

// Clone returns a copy of e that shares no mutable state with it.
func (e Entry) Clone() Entry {
	e.Diff = e.Diff.Clone()
	e.Meta = CloneMeta(e.Meta)
	return e
}

// CloneMeta deep-copies nested maps and slices of decoded metadata. Other
// values are copied as they are.
func CloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = cloneMetaValue(v)
	}
	return out
}

func cloneMetaValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMeta(x)
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneMetaValue(item)
		}
		return out
	case map[string]string:
		return maps.Clone(x)
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}

// Grouped maps an entity type to its entries, newest first.
type Grouped map[string][]Entry

// Count returns the number of entries across all groups.
func (g Grouped) Count() int {
	n := 0
	for _, entries := range g {
		n += len(entries)
	}
	return n
}

// -----------------------------------------------------------------------------
// Day buckets
// -----------------------------------------------------------------------------

// DayLayout is the accepted form of a day-bucket query parameter.
const DayLayout = "2006-01-02"

// Day is one calendar day in a specific zone, as the half-open interval
// [Start, End).
type Day struct {
	Start time.Time
	End   time.Time
}

// ParseDay interprets s (YYYY-MM-DD) as a calendar day in loc. A nil loc
// means the process's local zone.
func ParseDay(s string, loc *time.Location) (Day, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return Day{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "day must be formatted as YYYY-MM-DD")
	}
	return DayOf(t), nil
}

// DayOf returns the calendar day containing t in t's zone.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	// AddDate keeps DST days at their real length.
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains reports whether t falls within the day.
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// String returns the day in DayLayout.
func (d Day) String() string { return d.Start.Format(DayLayout) }

// MatchesType reports whether entityType passes a filter. An empty filter
// matches everything.
func MatchesType(entityType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, entityType) {
			return true
		}
	}
	return false
}
