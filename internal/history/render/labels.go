package render

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"labtrail/internal/history/profile"
	"labtrail/pkg/changes"
)

// noiseField matches volatile or internal field names that never make a
// useful row, whatever the entity type.
var noiseField = regexp.MustCompile(`^(?i:id|_id|__v|version|revision|etag|createdAt|updatedAt|deletedAt|created_at|updated_at|deleted_at|lastModified|last_modified|modifiedAt|lastLogin|lastSeen|viewCount|printCount|syncedAt)$`)

// knownLabels are shared labels for fields whose derived label reads badly.
var knownLabels = map[string]string{
	"dob":        "Date of Birth",
	"email":      "Email",
	"mrp":        "MRP",
	"gst":        "GST",
	"uhid":       "UHID",
	"pin":        "PIN Code",
	"pincode":    "PIN Code",
	"firstName":  "First Name",
	"lastName":   "Last Name",
	"middleName": "Middle Name",
	"qty":        "Quantity",
}

// IsNoise reports whether path should never be rendered: its last segment is
// a volatile field, or any segment is an internal "_"-prefixed key.
func IsNoise(path string) bool {
	for _, seg := range changes.SplitPath(path) {
		if strings.HasPrefix(seg, "_") {
			return true
		}
	}
	return noiseField.MatchString(lastSegment(path))
}

// labelFor resolves a label from the profile, then known labels, then by
// deriving one from the last path segment.
func labelFor(p profile.Profile, path string) string {
	if l, ok := p.Label(path); ok {
		return l
	}
	if l, ok := knownLabels[path]; ok {
		return l
	}
	last := lastSegment(path)
	if l, ok := knownLabels[last]; ok {
		return l
	}
	return DeriveLabel(last)
}

// DeriveLabel splits a field name on camelCase and separators and title-cases
// the words: "totalAmount" becomes "Total Amount".
func DeriveLabel(field string) string {
	words := splitWords(field)
	if len(words) == 0 {
		return field
	}
	return cases.Title(language.English).String(strings.ToLower(strings.Join(words, " ")))
}

func lastSegment(path string) string {
	return changes.LastSegment(path)
}

// splitWords breaks "paymentDueAmount" or "due_amount" into words. Runs of
// capitals stay together ("testID" gives "test", "ID").
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if prevLower || (prevUpper && nextLower) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}
