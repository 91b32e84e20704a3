package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnavailable marks an external dependency as down, overloaded, or
// quota-limited. Callers with a fallback absorb it locally; the HTTP layer
// maps it to 503 where no fallback exists.
var ErrUnavailable = errors.New("resilience: service unavailable")

// Unavailable wraps err as an [ErrUnavailable] with a reason prefix.
func Unavailable(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, reason, err)
}

// IsUnavailable reports whether err should engage a fallback path rather
// than propagate: explicit [ErrUnavailable], an open breaker, expired
// deadlines, and transport-level failures all qualify.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrOpen) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetriableStatus reports whether an upstream HTTP status is a quota or
// availability condition (429 and the 5xx family). Provider implementations
// use it to decide what to wrap in [Unavailable].
func RetriableStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}
