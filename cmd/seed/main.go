// Command seed registers a fixture of anchored records through the same
// service the API uses, so every entry is validated and probed exactly as a
// live register request would be.
//
// The fixture is a JSON array of {"lat", "lon", "content"} objects read from
// -file, or from stdin when -file is omitted. Storage is selected with the
// usual environment variables (STORAGE_BACKEND, MONGO_URL, ...).
//
// Usage:
//
//	STORAGE_BACKEND=badger go run ./cmd/seed -file data/fixtures/places.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/geo-anchor-service/internal/adapter/probe"
	"github.com/couchcryptid/geo-anchor-service/internal/config"
	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
	"github.com/couchcryptid/geo-anchor-service/internal/registry"
	"github.com/couchcryptid/geo-anchor-service/internal/storage"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type entry struct {
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	Content json.RawMessage `json:"content"`
}

type registrar interface {
	Register(ctx context.Context, in registry.RegisterInput) (domain.Record, error)
}

// acceptAll skips the outbound probe for offline seeding.
type acceptAll struct{}

func (acceptAll) Validate(context.Context, json.RawMessage) bool { return true }

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	file := flag.String("file", "", "path to the JSON fixture (default: stdin)")
	skipProbe := flag.Bool("skip-probe", false, "accept URL content without probing it")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetricsForTesting()

	in := io.Reader(os.Stdin)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open fixture: %w", err)
		}
		defer f.Close()
		in = f
	}

	repo, err := storage.Open(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Printf("close storage: %v", err)
		}
	}()

	var validator registry.ContentValidator = probe.NewValidator(cfg.ProbeTimeout, metrics, logger)
	if *skipProbe {
		validator = acceptAll{}
	}
	svc := registry.NewService(repo, validator, logger, metrics)

	accepted, rejected, err := seed(ctx, svc, in)
	if err != nil {
		return err
	}
	log.Printf("backend %s: %d accepted, %d rejected", repo.Backend(), accepted, rejected)
	return nil
}

// seed registers every fixture entry. Entries the service rejects as invalid
// or unreachable are counted and skipped; any other failure aborts the run.
func seed(ctx context.Context, svc registrar, r io.Reader) (accepted, rejected int, err error) {
	var entries []entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, 0, fmt.Errorf("decode fixture: %w", err)
	}

	for i, e := range entries {
		rec, err := svc.Register(ctx, registry.RegisterInput{Lat: e.Lat, Lon: e.Lon, Content: e.Content})
		switch {
		case err == nil:
			accepted++
			log.Printf("entry %d: registered %s at %.6f,%.6f", i, rec.ID, rec.Lat, rec.Lon)
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrContentUnreachable):
			rejected++
			log.Printf("entry %d: rejected: %v", i, err)
		default:
			return accepted, rejected, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return accepted, rejected, nil
}
