package fetcher

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrUnreachable matches every failure to obtain the feed document:
// DNS errors, refused connections, timeouts and non-2xx responses.
// It never matches a feed that was fetched but had zero items.
var ErrUnreachable = errors.New("feed source unreachable")

// ErrTooLarge is returned for a feed document above the size limit.
// Nothing is parsed from a truncated body.
var ErrTooLarge = errors.New("feed document too large")

// TransportError describes why the feed document could not be obtained
type TransportError struct {
	URL        string
	StatusCode int // set for non-2xx responses
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feed '%s' answered with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("feed '%s' unreachable: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrUnreachable
}

// Timeout reports whether the failure was caused by a deadline
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(e.Err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
