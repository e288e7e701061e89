package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Storage backend names accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendSupabase = "supabase"
	BackendBadger   = "badger"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// STORAGE_BACKEND, falling back to the legacy USE_DB name.
	StorageBackend string

	MongoURL        string
	MongoDatabase   string
	MongoCollection string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseTable  string
	SupabaseSchema string

	BadgerPath string

	// Outbound probe applied to URL content before it is saved.
	ProbeTimeout time.Duration

	// Record events are published only when brokers are configured.
	KafkaBrokers       []string
	KafkaTopic         string
	PublishEnabled     bool
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	probeTimeout, err := parsePositiveDuration("PROBE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	brokers := sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		StorageBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORAGE_BACKEND", sharedcfg.EnvOrDefault("USE_DB", BackendMemory))),

		MongoURL:        sharedcfg.EnvOrDefault("MONGO_URL", "mongodb://127.0.0.1:27017"),
		MongoDatabase:   sharedcfg.EnvOrDefault("MONGO_DB", "alacarte"),
		MongoCollection: sharedcfg.EnvOrDefault("MONGO_COLLECTION", "records"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_KEY"),
		SupabaseTable:  sharedcfg.EnvOrDefault("SUPABASE_TABLE", "records"),
		SupabaseSchema: sharedcfg.EnvOrDefault("SUPABASE_SCHEMA", "public"),

		BadgerPath: sharedcfg.EnvOrDefault("BADGER_PATH", "data/records"),

		ProbeTimeout: probeTimeout,

		KafkaBrokers:       brokers,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "anchored-records"),
		PublishEnabled:     len(brokers) > 0,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendMongo, BackendBadger:
	case BackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return nil, errors.New("SUPABASE_URL and SUPABASE_KEY are required when STORAGE_BACKEND=supabase")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping blanks.
func splitList(value string) []string {
	return sharedcfg.ParseBrokers(value)
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
