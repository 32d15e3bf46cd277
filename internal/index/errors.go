package index

import (
	"errors"
	"fmt"
)

// ErrInvalidK is returned by Search when k is not positive.
var ErrInvalidK = errors.New("k must be a positive integer")

// IndexUnavailableError means the persisted index is missing, corrupt or
// was built in a different embedding space than the one in use. It is
// fatal for retrieval until the index is rebuilt or reloaded.
type IndexUnavailableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IndexUnavailableError) Error() string {
	msg := "index unavailable"
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

func unavailable(path, reason string, err error) *IndexUnavailableError {
	return &IndexUnavailableError{Path: path, Reason: reason, Err: err}
}
