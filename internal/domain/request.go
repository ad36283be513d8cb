package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid review page url")
	// ErrDomainNotAllowed is returned when the host is outside the allow-list.
	ErrDomainNotAllowed = errors.New("review page domain is not allowed")
)

// NewReviewPageRequest validates raw against the allowed domain suffixes.
func NewReviewPageRequest(raw string, allowedSuffixes []string) (ReviewPageRequest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ReviewPageRequest{}, ErrInvalidURL
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ReviewPageRequest{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ReviewPageRequest{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ReviewPageRequest{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if !HostAllowed(host, allowedSuffixes) {
		return ReviewPageRequest{}, fmt.Errorf("%w: %s", ErrDomainNotAllowed, host)
	}

	return ReviewPageRequest{URL: parsed}, nil
}

// HostAllowed reports whether host equals one of the suffixes or is a subdomain of it.
func HostAllowed(host string, suffixes []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, suffix := range suffixes {
		suffix = strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), ".")
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
