package portal

import (
	"errors"
	"fmt"
)

// Error taxonomy for remote portal interaction. Callers branch with
// errors.Is; everything returned by this package wraps one of these.
var (
	// ErrAuth covers invalid credentials and expired sessions that
	// could not be silently renewed.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork covers transport failures: timeout, connection reset,
	// host resolution. These are retried with bounded backoff before
	// being surfaced.
	ErrNetwork = errors.New("network failure")

	// ErrRemoteRejection means the portal answered and explicitly
	// refused. Authoritative; never retried.
	ErrRemoteRejection = errors.New("portal rejected the request")

	// ErrDecode means the response did not have the expected shape.
	ErrDecode = errors.New("unexpected portal response shape")
)

// errSessionExpired is internal: it marks a response that indicates the
// server-side session is gone. The client re-authenticates once before
// turning it into ErrAuth.
var errSessionExpired = errors.New("session expired")

func rejectionError(code int, message string) error {
	if message == "" {
		message = "no reason given"
	}
	return fmt.Errorf("%w: %s (e=%d)", ErrRemoteRejection, message, code)
}

func decodeError(context string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, context, err)
	}
	return fmt.Errorf("%w: %s", ErrDecode, context)
}
