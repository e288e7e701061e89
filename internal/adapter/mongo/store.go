// Package mongo stores records in a MongoDB collection.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Config selects the server, database, and collection.
type Config struct {
	URL        string
	Database   string
	Collection string
}

// Store implements domain.RecordStore on a MongoDB collection.
type Store struct {
	cfg    Config
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

var _ domain.RecordStore = (*Store)(nil)

// New creates a store. No connection is made until Init.
func New(cfg Config, logger *slog.Logger) *Store {
	return &Store{cfg: cfg, logger: logger}
}

// Init connects and pings the primary.
func (s *Store) Init(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(s.cfg.URL).
		SetServerSelectionTimeout(10 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	s.client = client
	s.coll = client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	s.logger.Info("mongo connected", "database", s.cfg.Database, "collection", s.cfg.Collection)
	return nil
}

// Close disconnects the client if Init succeeded.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping reports whether the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return mongo.ErrClientDisconnected
	}
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Save(ctx context.Context, r domain.Record) (domain.Record, error) {
	doc, err := toDocument(r)
	if err != nil {
		return domain.Record{}, err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return domain.Record{}, err
	}
	return r, nil
}

// ListAll returns every record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.find(ctx, bson.D{}, opts)
}

// FindNearest pushes the grid window to the server as a range filter.
func (s *Store) FindNearest(ctx context.Context, lat, lon, thresholdMeters float64) (domain.Match, bool, error) {
	candidates, err := s.find(ctx, gridFilter(lat, lon))
	if err != nil {
		return domain.Match{}, false, err
	}
	m, ok := domain.Nearest(lat, lon, thresholdMeters, candidates)
	return m, ok, nil
}

func (s *Store) find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) ([]domain.Record, error) {
	cursor, err := s.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		r, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func gridFilter(lat, lon float64) bson.D {
	b := domain.GridBounds(lat, lon)
	return bson.D{
		{Key: "lat", Value: bson.D{{Key: "$gte", Value: b.MinLat}, {Key: "$lte", Value: b.MaxLat}}},
		{Key: "lon", Value: bson.D{{Key: "$gte", Value: b.MinLon}, {Key: "$lte", Value: b.MaxLon}}},
	}
}

// document is the stored shape. Content is kept as a native BSON value so
// structured payloads stay queryable from the shell.
type document struct {
	ID        string    `bson:"_id"`
	Lat       float64   `bson:"lat"`
	Lon       float64   `bson:"lon"`
	Content   any       `bson:"content"`
	Place     string    `bson:"place,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toDocument(r domain.Record) (document, error) {
	var content any
	if len(r.Content) > 0 {
		if err := json.Unmarshal(r.Content, &content); err != nil {
			return document{}, fmt.Errorf("decode content: %w", err)
		}
	}
	return document{
		ID:        r.ID,
		Lat:       r.Lat,
		Lon:       r.Lon,
		Content:   content,
		Place:     r.Place,
		CreatedAt: r.CreatedAt,
	}, nil
}

func (d document) toRecord() (domain.Record, error) {
	content, err := json.Marshal(d.Content)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode content: %w", err)
	}
	return domain.Record{
		ID:        d.ID,
		Lat:       d.Lat,
		Lon:       d.Lon,
		Content:   content,
		Place:     d.Place,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}
