package qa

import "errors"

// ErrBadRequest rejects questions that are empty after trimming whitespace.
// The check happens before any retrieval work starts.
var ErrBadRequest = errors.New("question cannot be empty")
