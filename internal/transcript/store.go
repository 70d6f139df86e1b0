package transcript

import "context"

// Filter narrows FindFirst lookups. Zero-value fields are ignored.
type Filter struct {
	ID      string
	Speaker Speaker
}

// Store is the durable record store for transcript rows.
//
// Implementations must be safe for concurrent use. FindFirst returns
// (nil, nil) when no record matches.
type Store interface {
	// Create inserts a new record. The record's CreatedAt field is populated
	// by the store on success.
	Create(ctx context.Context, rec *Record) error

	// FindFirst returns the oldest record matching the filter, or (nil, nil)
	// if none exists.
	FindFirst(ctx context.Context, f Filter) (*Record, error)
}
