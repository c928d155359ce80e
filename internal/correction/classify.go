package correction

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// IsConnectionError classifies an error from the correction agent (or the
// transcription backend) as transient/connection-level versus a hard
// failure. Per the open question in spec.md §9 ("the heuristic that
// classifies errors as 'connection' by substring of the message is
// fragile"), this matches on error types structurally — context deadline,
// *net.OpError, *url.Error — rather than string-matching the message, and
// only falls back to errors.Is(err, context.DeadlineExceeded) /
// net.Error.Timeout() for the cases Go's http client actually surfaces.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
