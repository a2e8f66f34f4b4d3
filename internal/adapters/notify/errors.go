package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrTemplate = errors.New("render email")
	ErrSend     = errors.New("send email")
	ErrConfig   = errors.New("notifier config")
)
