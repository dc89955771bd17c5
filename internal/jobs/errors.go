package jobs

import (
	"errors"
	"fmt"
)

// TransportError covers network failures and bad HTTP statuses. It is
// retried up to the retry ceiling.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error fetching %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError marks an expected field missing or unrecognized markup.
// It is retried as a full re-fetch since it may be a transient render
// issue, then treated as a permanent failure.
type ParseError struct {
	URL   string
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on %s: missing %s", e.URL, e.Field)
}

// StorageError isolates a single output format's write failure; other
// formats keep working.
type StorageError struct {
	Format string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage format %s failed: %v", e.Format, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FatalError aborts the entire run, e.g. the fetch collaborator
// rejecting our authorization. Retrying would waste attempts against a
// non-recoverable condition.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
