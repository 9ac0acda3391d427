package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL  = errors.New("invalid URL")
	ErrFetchFailed = errors.New("fetch failed")
	ErrFileResolve = errors.New("file metadata resolution failed")
	ErrWriteFailed = errors.New("write failed")
	ErrJobNotFound = errors.New("sync job not found")
	ErrInvalidJob  = errors.New("invalid sync job")
	ErrJobState    = errors.New("sync job state does not allow this operation")
	ErrInvalidPath = errors.New("path outside the documents root")
)

// StatusError is returned for a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Unwrap makes StatusError match ErrFetchFailed
func (e *StatusError) Unwrap() error {
	return ErrFetchFailed
}

// Retryable reports whether the request may succeed on a later attempt
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
