package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewReviewPageRequest(t *testing.T) {
	t.Parallel()

	allowed := []string{"irecommend.ru"}

	cases := []struct {
		raw     string
		wantErr error
	}{
		{"https://irecommend.ru/content/phone-x", nil},
		{"http://www.irecommend.ru/content/phone-x", nil},
		{"  https://IRECOMMEND.RU/content/phone-x  ", nil},
		{"", ErrInvalidURL},
		{"ftp://irecommend.ru/content/x", ErrInvalidURL},
		{"/content/phone-x", ErrInvalidURL},
		{"https:///content/phone-x", ErrInvalidURL},
		{"https://example.com/content/x", ErrDomainNotAllowed},
		{"https://notirecommend.ru/content/x", ErrDomainNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			req, err := NewReviewPageRequest(tc.raw, allowed)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req.String() == "" {
					t.Fatal("empty request url")
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestHostAllowed(t *testing.T) {
	t.Parallel()

	if !HostAllowed("m.irecommend.ru.", []string{".irecommend.ru"}) {
		t.Fatal("subdomain with trailing dot should be allowed")
	}
	if HostAllowed("irecommend.ru.evil.com", []string{"irecommend.ru"}) {
		t.Fatal("suffix must match on a label boundary")
	}
	if HostAllowed("irecommend.ru", []string{"", "  "}) {
		t.Fatal("blank suffixes allow nothing")
	}
}

func TestFetchError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := fmt.Errorf("product page: %w", &FetchError{
		Kind:       FetchAccessDenied,
		URL:        "https://irecommend.ru/content/x",
		StatusCode: 403,
		Attempts:   3,
		Err:        cause,
	})

	if got := FetchKind(err); got != FetchAccessDenied {
		t.Fatalf("unexpected kind %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause is not reachable")
	}
	want := "product page: fetch https://irecommend.ru/content/x: access_denied after 3 attempt(s) (last status 403): connection reset"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if FetchKind(cause) != "" {
		t.Fatal("plain errors have no kind")
	}
}
