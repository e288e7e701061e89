// Package badger stores records in an embedded BadgerDB database.
//
// Keys are "record/" + big-endian createdAt nanoseconds + "/" + id, so a
// forward scan yields insertion order and a reverse scan yields newest first.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/dgraph-io/badger/v4"
)

const recordPrefix = "record/"

// ErrClosed is returned when the store is used before Init or after Close.
var ErrClosed = errors.New("badger store is not open")

// Store implements domain.RecordStore on BadgerDB.
type Store struct {
	path     string
	inMemory bool
	db       *badger.DB
	logger   *slog.Logger
}

var _ domain.RecordStore = (*Store)(nil)

// New creates a store backed by the directory at path.
func New(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// NewInMemory creates a store that keeps everything in RAM.
func NewInMemory(logger *slog.Logger) *Store {
	return &Store{inMemory: true, logger: logger}
}

// loggerAdapter routes badger's internal logging through slog.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, args ...any)   { l.logger.Error(fmt.Sprintf(msg, args...)) }
func (l *loggerAdapter) Warningf(msg string, args ...any) { l.logger.Warn(fmt.Sprintf(msg, args...)) }
func (l *loggerAdapter) Infof(msg string, args ...any)    { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *loggerAdapter) Debugf(msg string, args ...any)   { l.logger.Debug(fmt.Sprintf(msg, args...)) }

// Init opens the database, creating the directory if needed.
func (s *Store) Init(_ context.Context) error {
	var opts badger.Options
	if s.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0o755); err != nil {
			return fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(s.path)
	}
	opts = opts.WithLogger(&loggerAdapter{logger: s.logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(_ context.Context, r domain.Record) (domain.Record, error) {
	if s.db == nil {
		return domain.Record{}, ErrClosed
	}
	value, err := json.Marshal(r)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(r), value)
	})
	if err != nil {
		return domain.Record{}, err
	}
	return r, nil
}

// ListAll returns every record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	var records []domain.Record
	err := s.scan(ctx, true, func(r domain.Record) {
		records = append(records, r)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindNearest applies the grid window while iterating in insertion order.
func (s *Store) FindNearest(ctx context.Context, lat, lon, thresholdMeters float64) (domain.Match, bool, error) {
	var candidates []domain.Record
	err := s.scan(ctx, false, func(r domain.Record) {
		if domain.WithinGrid(r, lat, lon) {
			candidates = append(candidates, r)
		}
	})
	if err != nil {
		return domain.Match{}, false, err
	}
	m, ok := domain.Nearest(lat, lon, thresholdMeters, candidates)
	return m, ok, nil
}

func (s *Store) scan(ctx context.Context, reverse bool, fn func(domain.Record)) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(recordPrefix)
		if reverse {
			seek = append(seek, 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r domain.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return fmt.Errorf("decode record %q: %w", it.Item().Key(), err)
			}
			fn(r)
		}
		return nil
	})
}

func recordKey(r domain.Record) []byte {
	key := make([]byte, 0, len(recordPrefix)+8+1+len(r.ID))
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(r.CreatedAt.UnixNano()))
	key = append(key, '/')
	return append(key, r.ID...)
}
