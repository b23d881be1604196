// Package strings provides string list utilities for query parameters.
package strings

import (
	"strings"
)

// SplitDedupeLower flattens comma-separated values, trims and lowercases
// each element, and drops empties and duplicates. Order of first
// appearance is preserved. A nil result means no usable value was given.
//
// Example:
//
//	SplitDedupeLower([]string{"Patient, invoice", "patient", " "})
//	// Returns: []string{"patient", "invoice"}
func SplitDedupeLower(values []string) []string {
	var result []string
	seen := make(map[string]struct{})

	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}

	return result
}
