package domain

import (
	"errors"
	"fmt"
)

// FailureReason is the closed set of pipeline outcomes reported to callers.
type FailureReason string

const (
	ReasonAccessDenied          FailureReason = "access_denied"
	ReasonNoReviewsFound        FailureReason = "no_reviews_found"
	ReasonClassifierUnavailable FailureReason = "classifier_unavailable"
	ReasonInternalError         FailureReason = "internal_error"
)

// FetchFailureKind classifies why a page could not be fetched.
type FetchFailureKind string

const (
	FetchBlocked          FetchFailureKind = "blocked"
	FetchAccessDenied     FetchFailureKind = "access_denied"
	FetchNetworkError     FetchFailureKind = "network_error"
	FetchTimeout          FetchFailureKind = "timeout"
	FetchMalformedContent FetchFailureKind = "malformed_content"
	FetchHTTPStatus       FetchFailureKind = "http_status"
)

// FetchError is the typed failure returned by the fetcher.
type FetchError struct {
	Kind       FetchFailureKind
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s after %d attempt(s)", e.URL, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchKind extracts the failure kind from err, or "" if err is not a FetchError.
func FetchKind(err error) FetchFailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
