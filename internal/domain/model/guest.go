// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Guest is one RSVP record. Every submitted field is optional and stored as
// NULL when absent, so they are pointers.
type Guest struct {
	ID        int64     `json:"id"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	Email     *string   `json:"email"`
	Number    *string   `json:"number"`
	CreatedAt time.Time `json:"createdAt"`
}

// Text dereferences an optional field, returning "" for nil.
func Text(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to s. Handy in tests and fixtures.
func Ptr(s string) *string { return &s }

// FullName joins the name parts that are present.
func (g Guest) FullName() string {
	return strings.TrimSpace(Text(g.FirstName) + " " + Text(g.LastName))
}

// Recipient returns the trimmed email address, or "" when there is none.
func (g Guest) Recipient() string {
	return strings.TrimSpace(Text(g.Email))
}

// Key identifies the stored row for idempotency tracking.
func (g Guest) Key() string {
	return "rsvp:" + strconv.FormatInt(g.ID, 10)
}

// Notification is the job handed to the notification workers after a guest
// row has been committed.
type Notification struct {
	Guest      Guest
	EnqueuedAt time.Time
}

// Filter narrows admin listings.
type Filter struct {
	// Query matches case-insensitively against names and email.
	Query  string
	Limit  int
	Offset int
}

// Stats summarizes the guest table.
type Stats struct {
	Total           int64      `json:"total"`
	WithEmail       int64      `json:"withEmail"`
	DistinctEmails  int64      `json:"distinctEmails"`
	LastSubmittedAt *time.Time `json:"lastSubmittedAt"`
}
