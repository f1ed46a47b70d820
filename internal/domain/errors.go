package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSummarizerUnavailable marks summarizer failures the caller may degrade on.
	ErrSummarizerUnavailable = errors.New("summarizer unavailable")
	// ErrStoreConflict reports a lost compare-and-set race on a history key.
	ErrStoreConflict = errors.New("history store conflict")
	// ErrNotFound is returned by repositories for unknown identifiers.
	ErrNotFound = errors.New("not found")
)

// NormalizationError rejects a raw item that cannot become a document.
type NormalizationError struct {
	SourceID string
	Ref      string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s/%s: %s", e.SourceID, e.Ref, e.Reason)
}

// FetchError reports a source that could not be read this run.
type FetchError struct {
	SourceID string
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("fetch %s (%s): %v", e.SourceID, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.SourceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func upper(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
