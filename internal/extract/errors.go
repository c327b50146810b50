package extract

import (
	"fmt"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
)

// FailureKind says why an extraction failed.
type FailureKind string

const (
	InvalidURL  FailureKind = "invalid_url"
	FetchFailed FailureKind = "fetch_failed"
	Timeout     FailureKind = "timeout"
	BadStatus   FailureKind = "bad_status"
	Unparseable FailureKind = "unparseable"
	NotProduct  FailureKind = "not_product"
)

// ExtractionError is returned when a page cannot be fetched or is not
// recognisable as a product page. No partial record accompanies it.
type ExtractionError struct {
	URL        string
	Reason     FailureKind
	StatusCode int
	Err        error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extracting %s: %s", e.URL, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Kind() apperr.Kind { return apperr.KindExtraction }

// Retryable reports whether trying again later may succeed.
func (e *ExtractionError) Retryable() bool {
	switch e.Reason {
	case FetchFailed, Timeout:
		return true
	case BadStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	}
	return false
}
