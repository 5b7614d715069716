// Package uuid wraps github.com/google/uuid behind the one-function
// surface the rest of the codebase needs.
package uuid

import "github.com/google/uuid"

// New returns a random UUID string.
func New() string {
	return uuid.NewString()
}
