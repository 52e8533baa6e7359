package history

import "errors"

// ErrRunNotFound is returned by Summary when no run row matches the given
// run ID.
var ErrRunNotFound = errors.New("history: run not found")
