package fetch

import (
	"fmt"

	"cloudeng.io/errors"
)

// TargetError reports a target directory that cannot be used. It is returned
// before any network activity.
type TargetError struct {
	Path   string // The offending target path
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("invalid target directory %q: %s", e.Path, e.Reason)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// FetchError records the failure to retrieve one URI. Run collects them
// without stopping.
type FetchError struct {
	URI string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to retrieve %s: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError is the cause of a FetchError when the server answers with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

// Failures returns the per-URI failures carried by an error returned from
// Run, in URI order. It returns nil for a nil error.
func Failures(err error) []*FetchError {
	if err == nil {
		return nil
	}

	var m *errors.M
	if !errors.As(err, &m) {
		var fe *FetchError
		if errors.As(err, &fe) {
			return []*FetchError{fe}
		}

		return nil
	}

	var out []*FetchError

	for _, e := range m.Unwrap() {
		var fe *FetchError
		if errors.As(e, &fe) {
			out = append(out, fe)
		}
	}

	return out
}
