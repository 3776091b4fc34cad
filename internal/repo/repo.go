package repo

import "errors"

// ErrNotFound is returned by lookups when no row matches. Callers that need
// to distinguish absence from storage failure check with errors.Is.
var ErrNotFound = errors.New("not found")
