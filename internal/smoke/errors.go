package smoke

import "errors"

// Sentinel errors reported by Run.
var (
	ErrUnhealthy = errors.New("service unhealthy")
	ErrRequest   = errors.New("request failed")
	ErrVerify    = errors.New("verification failed")
	ErrNoneSent  = errors.New("no rsvp was accepted")
)
