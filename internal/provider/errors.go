package provider

import "errors"

// ErrAuthorization marks failures that require the user to re-consent.
// Callers must not retry; the operation that needed the session aborts.
var ErrAuthorization = errors.New("provider: authorization required")

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient tags err as a transient transport failure. Retry policy
// belongs to the caller or the dispatcher, never to this core.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was tagged by MarkTransient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
