// Package idgen generates execution, run, and blueprint identifiers.
package idgen

import "github.com/google/uuid"

// New generates a new identifier for runs, executions, and dynamically
// spliced nodes.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a syntactically valid identifier.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
