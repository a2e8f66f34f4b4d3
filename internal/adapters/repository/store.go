// Package repository persists guest RSVPs.
package repository

import (
	"context"

	"github.com/okian/rsvp/internal/domain/model"
)

// Listing bounds applied by List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store provides read/write access to the guest table.
type Store interface {
	// Insert writes one guest row in its own transaction and returns it with
	// the generated id and created_at filled in. Nothing is persisted on error.
	Insert(ctx context.Context, g model.Guest) (model.Guest, error)

	// List returns guests newest first, narrowed by the filter.
	List(ctx context.Context, f model.Filter) ([]model.Guest, error)

	// Stats summarizes the table.
	Stats(ctx context.Context) (model.Stats, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
