package repo

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchError describes a failed read from the dispatch API. Every FetchError is
// display-only: schedulers keep polling and retry on the next tick.
type FetchError struct {
	Kind      string
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: upstream returned %d %s", e.Kind, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a FetchError caused by the network or a 5xx.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// IsNotFound reports whether err is a FetchError for a 404 response.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Status == http.StatusNotFound
}

func statusError(kind string, status int) *FetchError {
	return &FetchError{
		Kind:      kind,
		Status:    status,
		Transient: status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
	}
}

func transportError(kind string, err error) *FetchError {
	return &FetchError{Kind: kind, Transient: true, Err: err}
}
