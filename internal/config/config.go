package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/listing"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Catalog source kinds.
const (
	SourceREST     = "rest"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the storefront service.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"storefront"`
	ServiceVersion  string        `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Catalog source
	SourceKind        string        `env:"CATALOG_SOURCE" envDefault:"rest"`
	CatalogURL        string        `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001/api/v1"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT" envDefault:"5s"`
	CatalogMaxRetries int           `env:"CATALOG_MAX_RETRIES" envDefault:"2"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryLog      time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Taxonomy cache; an empty address disables it
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	TaxonomyCacheTTL time.Duration `env:"TAXONOMY_CACHE_TTL" envDefault:"5m"`

	// Events; no brokers disables both the consumer and the producer
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"storefront-bff"`

	// Listings
	PerPage        int           `env:"LISTING_PER_PAGE" envDefault:"24"`
	FetchLimit     int           `env:"LISTING_FETCH_LIMIT" envDefault:"500"`
	FetchTimeout   time.Duration `env:"LISTING_FETCH_TIMEOUT" envDefault:"10s"`
	SearchDebounce time.Duration `env:"SEARCH_DEBOUNCE" envDefault:"400ms"`
	PriceFloor     string        `env:"PRICE_FLOOR" envDefault:"0"`
	PriceCeiling   string        `env:"PRICE_CEILING" envDefault:"1000000"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	MaxSessions    int           `env:"MAX_SESSIONS" envDefault:"10000"`

	// HTTP surface
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RateLimitRPS        float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst      int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.1/32,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"`
	PprofAllowedCIDRs   []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.1/32"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("STOREFRONT_HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if !slices.Contains([]string{SourceREST, SourcePostgres}, c.SourceKind) {
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", SourceREST, SourcePostgres, c.SourceKind)
	}
	if c.SourceKind == SourcePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when CATALOG_SOURCE=%s", SourcePostgres)
	}
	if c.SourceKind == SourceREST && c.CatalogURL == "" {
		return fmt.Errorf("CATALOG_SERVICE_URL is required when CATALOG_SOURCE=%s", SourceREST)
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		return fmt.Errorf("LISTING_PER_PAGE must be between 1 and 100, got %d", c.PerPage)
	}
	if c.FetchLimit < c.PerPage || c.FetchLimit > 1000 {
		return fmt.Errorf("LISTING_FETCH_LIMIT must be between LISTING_PER_PAGE and 1000, got %d", c.FetchLimit)
	}
	if c.SearchDebounce < 300*time.Millisecond || c.SearchDebounce > 500*time.Millisecond {
		return fmt.Errorf("SEARCH_DEBOUNCE must be between 300ms and 500ms, got %s", c.SearchDebounce)
	}
	if _, err := c.PriceBounds(); err != nil {
		return err
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// PriceBounds returns the configured price slider bounds.
func (c *Config) PriceBounds() (catalog.PriceRange, error) {
	lo, err := decimal.NewFromString(c.PriceFloor)
	if err != nil || lo.IsNegative() {
		return catalog.PriceRange{}, fmt.Errorf("PRICE_FLOOR must be a non-negative amount, got %q", c.PriceFloor)
	}
	hi, err := decimal.NewFromString(c.PriceCeiling)
	if err != nil || !hi.GreaterThan(lo) {
		return catalog.PriceRange{}, fmt.Errorf("PRICE_CEILING must be an amount above PRICE_FLOOR, got %q", c.PriceCeiling)
	}
	return catalog.PriceRange{Min: lo, Max: hi}, nil
}

// ListingDefaults returns the settings shared by the built-in listing
// profiles. Call it only on a validated config.
func (c *Config) ListingDefaults() listing.Defaults {
	bounds, _ := c.PriceBounds()
	return listing.Defaults{
		PerPage:    c.PerPage,
		FetchLimit: c.FetchLimit,
		Debounce:   c.SearchDebounce,
		Bounds:     bounds,
	}
}
