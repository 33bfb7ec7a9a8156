package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrUnsupported  = errors.New("unsupported by marketplace")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotConnected = errors.New("marketplace not connected")
	ErrLockHeld     = errors.New("lock already held")
)

// FetchError is returned to every caller attached to a fetch that failed after
// all retries.
type FetchError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}
