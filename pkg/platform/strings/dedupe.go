// Package strings provides string slice helpers for configuration handling.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved. A nil input
// stays nil so callers can keep telling "unset" from "empty".
//
// Example:
//
//	DedupeAndTrim([]string{"  name ", "email", "name", "", "  "})
//	// Returns: []string{"name", "email"}
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Set builds a membership set from values, ignoring empty strings.
func Set(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// SplitList splits a comma-separated list such as "kafka-1:9092, kafka-2:9092"
// into trimmed, de-duplicated entries.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(s, ","))
}
