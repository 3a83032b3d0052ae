package blob

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the failure class of a blob fetch.
type Kind string

const (
	KindTimeout   Kind = "TIMEOUT"
	KindNotFound  Kind = "NOT_FOUND"
	KindTransport Kind = "TRANSPORT"
)

func (k Kind) String() string { return string(k) }

// FetchError reports why a locator could not be resolved.
type FetchError struct {
	Kind       Kind
	Locator    string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("blob fetch %s", strings.ToLower(e.Kind.String())))
	if e.Locator != "" {
		parts = append(parts, e.Locator)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf returns the fetch failure class of err, or KindTransport for foreign errors.
func KindOf(err error) Kind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Kind != "" {
		return fetchErr.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindTransport
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func timeoutError(locator string, err error) *FetchError {
	return &FetchError{Kind: KindTimeout, Locator: locator, Message: "fetch timed out", Transient: true, Cause: err}
}

func notFoundError(locator string, status int, cause error) *FetchError {
	return &FetchError{Kind: KindNotFound, Locator: locator, StatusCode: status, Message: "blob not found", Cause: cause}
}
