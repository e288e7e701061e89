// Package supabase stores records in a Supabase table through its PostgREST API.
//
// The table is expected to have the columns id (text, primary key),
// lat and lon (double precision), content (jsonb), place (text, nullable)
// and "createdAt" (timestamptz).
package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/supabase-community/postgrest-go"
)

// Config identifies the project and table.
type Config struct {
	URL    string // project URL, e.g. https://xyz.supabase.co
	Key    string
	Table  string
	Schema string
}

// Store implements domain.RecordStore on a PostgREST table.
// Errors returned by the remote service are passed through unchanged.
type Store struct {
	cfg    Config
	client *postgrest.Client
	logger *slog.Logger
}

var _ domain.RecordStore = (*Store)(nil)

// New creates a store. The client is built in Init.
func New(cfg Config, logger *slog.Logger) *Store {
	return &Store{cfg: cfg, logger: logger}
}

// Init builds the REST client. No request is made.
func (s *Store) Init(_ context.Context) error {
	if s.cfg.URL == "" || s.cfg.Key == "" {
		return errors.New("supabase url and key are required")
	}
	client := postgrest.NewClient(restURL(s.cfg.URL), s.cfg.Schema, nil)
	if client.ClientError != nil {
		return client.ClientError
	}
	client.SetApiKey(s.cfg.Key).SetAuthToken(s.cfg.Key)
	s.client = client
	return nil
}

func (s *Store) Close(_ context.Context) error { return nil }

func (s *Store) Save(ctx context.Context, r domain.Record) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	var rows []domain.Record
	_, err := s.client.From(s.cfg.Table).
		Insert(r, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		s.logger.Error("supabase insert failed", "table", s.cfg.Table, "error", err)
		return domain.Record{}, err
	}
	if len(rows) == 0 {
		return r, nil
	}
	return rows[0], nil
}

// ListAll returns every row ordered by createdAt, newest first.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []domain.Record
	_, err := s.client.From(s.cfg.Table).
		Select("*", "", false).
		Order("createdAt", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		s.logger.Error("supabase select failed", "table", s.cfg.Table, "error", err)
		return nil, err
	}
	return rows, nil
}

// FindNearest sends the grid window as range predicates and ranks the
// returned rows locally.
func (s *Store) FindNearest(ctx context.Context, lat, lon, thresholdMeters float64) (domain.Match, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Match{}, false, err
	}
	var rows []domain.Record
	_, err := s.client.From(s.cfg.Table).
		Select("*", "", false).
		And(gridPredicates(lat, lon), "").
		ExecuteTo(&rows)
	if err != nil {
		s.logger.Error("supabase range query failed", "table", s.cfg.Table, "error", err)
		return domain.Match{}, false, err
	}
	m, ok := domain.Nearest(lat, lon, thresholdMeters, rows)
	return m, ok, nil
}

// gridPredicates renders the window as a single and=(...) group. Separate
// Gte/Lte calls on one column would overwrite each other in the builder.
func gridPredicates(lat, lon float64) string {
	b := domain.GridBounds(lat, lon)
	return fmt.Sprintf("lat.gte.%s,lat.lte.%s,lon.gte.%s,lon.lte.%s",
		formatFloat(b.MinLat), formatFloat(b.MaxLat), formatFloat(b.MinLon), formatFloat(b.MaxLon))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func restURL(projectURL string) string {
	u := strings.TrimRight(projectURL, "/")
	if strings.HasSuffix(u, "/rest/v1") {
		return u
	}
	return u + "/rest/v1"
}
