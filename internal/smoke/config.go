// Package smoke drives a running RSVP service end to end: it checks health,
// posts generated RSVPs concurrently and verifies the admin totals moved by
// the number of accepted submissions.
package smoke

import (
	"time"

	"github.com/okian/rsvp/pkg/logger"
)

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Count         int           // Number of RSVPs to submit
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	AdminUser     string        // Admin user for /rsvps/stats; verification is skipped when empty
	AdminPassword string
	Verbose       bool
	Logger        logger.Logger
}

// Payload is one generated RSVP body.
type Payload struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     *string `json:"email,omitempty"`
	Number    *string `json:"number,omitempty"`
}

// Totals mirrors the admin stats response.
type Totals struct {
	Total          int64 `json:"total"`
	WithEmail      int64 `json:"withEmail"`
	DistinctEmails int64 `json:"distinctEmails"`
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Successful int
	Failed     int
	Before     *Totals
	After      *Totals
	Verified   bool
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
