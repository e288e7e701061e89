// Package storage selects the record backend and guards its initialization.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/adapter/badger"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/memory"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/mongo"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/supabase"
	"github.com/couchcryptid/geo-anchor-service/internal/config"
	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
	"golang.org/x/sync/singleflight"
)

// Pinger is implemented by backends that can probe their server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Repository is the single entry point to the configured backend. The
// backend is initialized lazily on first use, exactly once: concurrent first
// callers share one in-flight Init and its outcome, success or failure, is
// kept for the life of the process.
//
// Backend errors are returned unchanged.
type Repository struct {
	backend string
	store   domain.RecordStore
	logger  *slog.Logger
	metrics *observability.Metrics

	group singleflight.Group
	mu    sync.Mutex
	done  bool
	err   error
}

var _ domain.RecordStore = (*Repository)(nil)

// New wraps an already constructed backend.
func New(backend string, store domain.RecordStore, logger *slog.Logger, metrics *observability.Metrics) *Repository {
	return &Repository{backend: backend, store: store, logger: logger, metrics: metrics}
}

// Open builds the backend named by cfg.StorageBackend.
func Open(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Repository, error) {
	var store domain.RecordStore
	switch cfg.StorageBackend {
	case config.BackendMemory:
		store = memory.New()
	case config.BackendMongo:
		store = mongo.New(mongo.Config{
			URL:        cfg.MongoURL,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		}, logger)
	case config.BackendSupabase:
		store = supabase.New(supabase.Config{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey,
			Table:  cfg.SupabaseTable,
			Schema: cfg.SupabaseSchema,
		}, logger)
	case config.BackendBadger:
		store = badger.New(cfg.BadgerPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return New(cfg.StorageBackend, store, logger, metrics), nil
}

// Backend returns the configured backend name.
func (r *Repository) Backend() string { return r.backend }

// Init initializes the backend once. Later calls return the first outcome.
func (r *Repository) Init(ctx context.Context) error {
	if done, err := r.outcome(); done {
		return err
	}
	_, err, _ := r.group.Do("init", func() (any, error) {
		if done, err := r.outcome(); done {
			return nil, err
		}
		start := time.Now()
		// A caller's cancellation must not become the memoized outcome.
		err := r.store.Init(context.WithoutCancel(ctx))
		r.observe("init", start, err)

		r.mu.Lock()
		r.done, r.err = true, err
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("storage init failed", "backend", r.backend, "error", err)
		} else {
			r.logger.Info("storage ready", "backend", r.backend)
		}
		return nil, err
	})
	return err
}

func (r *Repository) outcome() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.err
}

// Close releases the backend. It is a no-op when Init never succeeded.
func (r *Repository) Close(ctx context.Context) error {
	if done, err := r.outcome(); !done || err != nil {
		return nil
	}
	return r.store.Close(ctx)
}

func (r *Repository) Save(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if err := r.Init(ctx); err != nil {
		return domain.Record{}, err
	}
	start := time.Now()
	saved, err := r.store.Save(ctx, rec)
	r.observe("save", start, err)
	return saved, err
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.Record, error) {
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	records, err := r.store.ListAll(ctx)
	r.observe("list", start, err)
	return records, err
}

func (r *Repository) FindNearest(ctx context.Context, lat, lon, thresholdMeters float64) (domain.Match, bool, error) {
	if err := r.Init(ctx); err != nil {
		return domain.Match{}, false, err
	}
	start := time.Now()
	m, ok, err := r.store.FindNearest(ctx, lat, lon, thresholdMeters)
	r.observe("find_nearest", start, err)
	return m, ok, err
}

// CheckReadiness reports ready once the backend has initialized and, for
// backends with a server, answers a ping.
func (r *Repository) CheckReadiness(ctx context.Context) error {
	if err := r.Init(ctx); err != nil {
		return fmt.Errorf("storage backend %s: %w", r.backend, err)
	}
	if p, ok := r.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage backend %s: %w", r.backend, err)
		}
	}
	return nil
}

func (r *Repository) observe(op string, start time.Time, err error) {
	r.metrics.StorageDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.StorageErrors.WithLabelValues(op).Inc()
	}
}
