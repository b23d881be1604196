// Package render turns a stored diff into presentation rows: noise removed,
// fields filtered per entity type, labels humanized, money and dates
// formatted, collections summarized by item name.
package render

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"labtrail/internal/history/profile"
	"labtrail/pkg/changes"
	audit "labtrail/pkg/platform/audit"
)

const (
	DefaultMaxRows        = 8
	DefaultCurrencySymbol = "₹"
)

// ChangeType classifies a rendered row.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeRemove ChangeType = "remove"
	ChangeEdit   ChangeType = "edit"
)

// Row is one displayable change. Before and After are formatted text;
// BeforeValue and AfterValue keep the stored values for scalar rows.
type Row struct {
	Field       string        `json:"field"`
	Label       string        `json:"label"`
	Before      string        `json:"before"`
	After       string        `json:"after"`
	BeforeValue changes.Value `json:"beforeValue,omitzero"`
	AfterValue  changes.Value `json:"afterValue,omitzero"`
	ChangeType  ChangeType    `json:"changeType"`
}

// ViewContext carries the viewer's display preferences.
type ViewContext struct {
	// Location renders timestamps. Nil means the process's local zone.
	Location *time.Location
	// CurrencySymbol prefixes money values. Empty means DefaultCurrencySymbol.
	CurrencySymbol string
	// MaxRows caps the rows per entry. Zero or less means DefaultMaxRows.
	MaxRows int
	// Language selects digit grouping. Zero means English.
	Language language.Tag
}

func (v ViewContext) withDefaults() ViewContext {
	if v.Location == nil {
		v.Location = time.Local
	}
	if v.CurrencySymbol == "" {
		v.CurrencySymbol = DefaultCurrencySymbol
	}
	if v.MaxRows <= 0 {
		v.MaxRows = DefaultMaxRows
	}
	if v.Language == language.Und {
		v.Language = language.English
	}
	return v
}

// Profiles resolves display metadata for an entity type.
type Profiles interface {
	Lookup(entityType string) profile.Profile
}

// Renderer is stateless apart from its profile source and safe for
// concurrent use.
type Renderer struct {
	profiles Profiles
}

func New(profiles Profiles) *Renderer {
	return &Renderer{profiles: profiles}
}

// Render produces at most view.MaxRows rows for entry. CREATE and DELETE
// entries carry no diff and render no rows. The stored diff is never
// modified.
func (r *Renderer) Render(entry audit.Entry, view ViewContext) []Row {
	view = view.withDefaults()
	f := &formatter{
		view:    view,
		printer: message.NewPrinter(view.Language),
	}
	p := r.profiles.Lookup(entry.EntityType)

	rows := make([]Row, 0, min(len(entry.Diff), view.MaxRows))
	for _, c := range entry.Diff {
		if len(rows) >= view.MaxRows {
			break
		}
		if IsNoise(c.Path) || !p.Displays(c.Path) {
			continue
		}
		label := labelFor(p, c.Path)
		if c.IsCollection() {
			rows = append(rows, collectionRows(f, p, c, label)...)
			continue
		}
		if row, ok := scalarRow(f, c, label); ok {
			rows = append(rows, row)
		}
	}
	if len(rows) > view.MaxRows {
		rows = rows[:view.MaxRows]
	}
	return rows
}

// scalarRow classifies one path change. Changes whose sides format to the
// same text are dropped.
func scalarRow(f *formatter, c changes.Change, label string) (Row, bool) {
	before := f.value(c.Path, c.Before)
	after := f.value(c.Path, c.After)
	if before == after {
		return Row{}, false
	}

	row := Row{
		Field:       c.Path,
		Label:       label,
		Before:      before,
		After:       after,
		BeforeValue: c.Before,
		AfterValue:  c.After,
	}
	switch {
	case before == "":
		row.ChangeType = ChangeAdd
	case after == "":
		row.ChangeType = ChangeRemove
	default:
		row.ChangeType = ChangeEdit
	}
	return row, true
}

// collectionRows emits up to three rows: removed names, added names, and
// modified items with their signature fields.
func collectionRows(f *formatter, p profile.Profile, c changes.Change, label string) []Row {
	spec, ok := p.Collection(c.Path)
	if !ok {
		spec = fallbackSpec(c.Path)
	}
	cc := c.Collection

	var rows []Row
	if len(cc.Removed) > 0 {
		rows = append(rows, Row{
			Field:      c.Path,
			Label:      label,
			Before:     joinNames(spec, cc.Removed),
			ChangeType: ChangeRemove,
		})
	}
	if len(cc.Added) > 0 {
		rows = append(rows, Row{
			Field:      c.Path,
			Label:      label,
			After:      joinNames(spec, cc.Added),
			ChangeType: ChangeAdd,
		})
	}
	if len(cc.Modified) > 0 {
		before := make([]string, 0, len(cc.Modified))
		after := make([]string, 0, len(cc.Modified))
		for _, m := range cc.Modified {
			before = append(before, f.itemSummary(spec, m.Before))
			after = append(after, f.itemSummary(spec, m.After))
		}
		rows = append(rows, Row{
			Field:      c.Path,
			Label:      label,
			Before:     strings.Join(before, "; "),
			After:      strings.Join(after, "; "),
			ChangeType: ChangeEdit,
		})
	}
	return rows
}

// fallbackSpec names items of a collection the profile no longer declares.
func fallbackSpec(field string) changes.CollectionSpec {
	return changes.CollectionSpec{
		Field:      field,
		KeyFields:  []string{"id", "code"},
		NameFields: []string{"name", "title", "label", "code", "id"},
	}
}

func joinNames(spec changes.CollectionSpec, items []changes.Value) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, spec.Name(item))
	}
	return strings.Join(names, ", ")
}
