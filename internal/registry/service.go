// Package registry implements the anchor operations: register, resolve, and history.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
)

// ContentValidator decides whether content may be anchored.
type ContentValidator interface {
	Validate(ctx context.Context, content json.RawMessage) bool
}

// Notifier receives every saved record. Implementations must not block.
type Notifier interface {
	Enqueue(r domain.Record) bool
}

// RegisterInput carries a register request. Nil coordinates mean the caller
// sent something other than a number; nil Content means it was absent.
type RegisterInput struct {
	Lat     *float64
	Lon     *float64
	Content json.RawMessage
}

// ResolveInput carries a resolve request. A nil threshold means the default.
type ResolveInput struct {
	Lat             *float64
	Lon             *float64
	ThresholdMeters *float64
}

// Resolution is the result of a successful resolve.
type Resolution struct {
	Content json.RawMessage
	Match   domain.Match
}

// Service coordinates validation, enrichment, and storage.
type Service struct {
	store     domain.RecordStore
	validator ContentValidator
	geocoder  domain.Geocoder // optional
	notifier  Notifier        // optional
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures optional collaborators.
type Option func(*Service)

// WithGeocoder labels new records with a place name.
func WithGeocoder(g domain.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithNotifier forwards saved records, e.g. to the event outbox.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a Service.
func NewService(store domain.RecordStore, validator ContentValidator, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{store: store, validator: validator, logger: logger, metrics: metrics}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and saves a new record. Input checks run before any
// network or storage call.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Record, error) {
	lat, lon, err := coordinates(in.Lat, in.Lon)
	if err != nil {
		s.metrics.RegisterRejected.WithLabelValues("invalid_input").Inc()
		return domain.Record{}, err
	}
	if in.Content == nil {
		s.metrics.RegisterRejected.WithLabelValues("invalid_input").Inc()
		return domain.Record{}, &domain.InputError{Field: "content", Reason: "content is required"}
	}

	if !s.validator.Validate(ctx, in.Content) {
		s.metrics.RegisterRejected.WithLabelValues("unreachable").Inc()
		return domain.Record{}, domain.ErrContentUnreachable
	}

	rec := domain.NewRecord(lat, lon, in.Content)
	rec.Place = s.lookupPlace(ctx, lat, lon)

	saved, err := s.store.Save(ctx, rec)
	if err != nil {
		s.metrics.RegisterRejected.WithLabelValues("storage").Inc()
		return domain.Record{}, err
	}
	s.metrics.RecordsRegistered.Inc()

	if s.notifier != nil {
		s.notifier.Enqueue(saved)
	}
	return saved, nil
}

// Resolve returns the content nearest to the coordinate within the threshold.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Resolution, error) {
	lat, lon, err := coordinates(in.Lat, in.Lon)
	if err != nil {
		s.metrics.ResolveRequests.WithLabelValues("invalid_input").Inc()
		return Resolution{}, err
	}
	threshold := domain.DefaultThresholdMeters
	if in.ThresholdMeters != nil {
		if !finite(*in.ThresholdMeters) {
			s.metrics.ResolveRequests.WithLabelValues("invalid_input").Inc()
			return Resolution{}, &domain.InputError{Field: "thresholdMeters", Reason: "thresholdMeters must be a number"}
		}
		threshold = *in.ThresholdMeters
	}

	m, ok, err := s.store.FindNearest(ctx, lat, lon, threshold)
	if err != nil {
		s.metrics.ResolveRequests.WithLabelValues("error").Inc()
		return Resolution{}, err
	}
	if !ok {
		s.metrics.ResolveRequests.WithLabelValues("not_found").Inc()
		return Resolution{}, domain.ErrNotFound
	}
	s.metrics.ResolveRequests.WithLabelValues("found").Inc()
	return Resolution{Content: m.Content, Match: m}, nil
}

// History returns every record in the backend's order.
func (s *Service) History(ctx context.Context) ([]domain.Record, error) {
	return s.store.ListAll(ctx)
}

// lookupPlace returns "" when geocoding is off or fails; a missing place
// never blocks a register.
func (s *Service) lookupPlace(ctx context.Context, lat, lon float64) string {
	if s.geocoder == nil {
		return ""
	}
	result, err := s.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("reverse geocode failed, saving without place", "error", err, "lat", lat, "lon", lon)
		}
		return ""
	}
	return result.FormattedAddress
}

func coordinates(lat, lon *float64) (float64, float64, error) {
	if lat == nil || lon == nil || !finite(*lat) || !finite(*lon) {
		field := "lat"
		if lat != nil && finite(*lat) {
			field = "lon"
		}
		return 0, 0, &domain.InputError{Field: field, Reason: "lat and lon must be numbers"}
	}
	return *lat, *lon, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
