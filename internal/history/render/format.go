package render

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/message"

	"labtrail/pkg/changes"
	audit "labtrail/pkg/platform/audit"
)

const (
	dateLayout     = "02 Jan 2006"
	dateTimeLayout = "02 Jan 2006, 03:04 PM"
)

// moneyWord matches the last word of a money-looking field name, so
// "totalAmount" and "cost" qualify while "dueDate" and "totalTests" do not.
var moneyWord = regexp.MustCompile(`^(?i:amount|total|price|cost|fees?|discount|paid|due|balance|tax|mrp|charges?)$`)

type formatter struct {
	view    ViewContext
	printer *message.Printer
}

// value formats v for display. Absent and null render as empty text.
func (f *formatter) value(path string, v changes.Value) string {
	switch v.Kind() {
	case changes.KindAbsent, changes.KindNull:
		return ""
	case changes.KindBool:
		b, _ := v.AsBool()
		if b {
			return "Yes"
		}
		return "No"
	case changes.KindNumber:
		n, _ := v.AsNumber()
		if isMoneyPath(path) {
			return f.money(n)
		}
		return v.String()
	case changes.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if isMoneyPath(path) {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return f.money(n)
			}
		}
		if t, ok := parseTimestamp(s); ok {
			return f.time(t)
		}
		// Calendar dates have no zone to convert from.
		if d, err := time.Parse(audit.DayLayout, s); err == nil {
			return d.Format(dateLayout)
		}
		return s
	case changes.KindTime:
		t, _ := v.AsTime()
		return f.time(t)
	case changes.KindArray:
		items := v.Items()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := f.value(path, item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return v.String()
	}
}

func (f *formatter) money(n float64) string {
	return f.view.CurrencySymbol + f.printer.Sprintf("%.2f", n)
}

// time shows t in the viewer's zone and drops the clock only at the viewer's
// midnight.
func (f *formatter) time(t time.Time) string {
	local := t.In(f.view.Location)
	if isMidnight(local) {
		return local.Format(dateLayout)
	}
	return local.Format(dateTimeLayout)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// itemSummary renders a collection item as "name: qty 2, cost ₹100.00" using
// the collection's signature fields.
func (f *formatter) itemSummary(spec changes.CollectionSpec, item changes.Value) string {
	name := spec.Name(item)
	parts := make([]string, 0, len(spec.SignatureFields))
	for _, field := range spec.SignatureFields {
		v := item.Lookup(field)
		if v.IsZero() {
			continue
		}
		parts = append(parts, field+" "+f.value(field, v))
	}
	if len(parts) == 0 {
		return name
	}
	return name + ": " + strings.Join(parts, ", ")
}

func isMoneyPath(path string) bool {
	words := splitWords(lastSegment(path))
	if len(words) == 0 {
		return false
	}
	return moneyWord.MatchString(words[len(words)-1])
}

// parseTimestamp recognizes RFC 3339 timestamps, which is how stored times
// come back from JSON-backed stores.
func parseTimestamp(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
