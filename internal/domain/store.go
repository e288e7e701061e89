package domain

import "context"

// RecordStore is the capability set every storage backend provides.
// Errors from the underlying store are returned unchanged.
type RecordStore interface {
	// Init prepares connections or handles. It must be safe to call before
	// any other method; the repository facade guarantees it runs once.
	Init(ctx context.Context) error
	Close(ctx context.Context) error

	// Save persists r and returns it as stored.
	Save(ctx context.Context, r Record) (Record, error)

	// ListAll returns every record in the backend's native order.
	ListAll(ctx context.Context) ([]Record, error)

	// FindNearest applies the grid pre-filter natively, then picks the
	// closest candidate within thresholdMeters.
	FindNearest(ctx context.Context, lat, lon, thresholdMeters float64) (Match, bool, error)
}
