// Package strings holds small helpers for comma-separated settings.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value, trimming whitespace and dropping
// empty and repeated entries. Order is preserved.
//
//	SplitList(" verify, ,verify,admin ") // []string{"verify", "admin"}
func SplitList(value string) []string {
	return DedupeAndTrim(strings.Split(value, ","))
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element.
func DedupeAndTrim(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
