package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/listing"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/source"
	"github.com/utafrali/storefront/internal/source/cache"
	"github.com/utafrali/storefront/internal/source/postgres"
	"github.com/utafrali/storefront/internal/source/rest"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// rateLimiterTTL is how long an idle client's token bucket is kept.
const rateLimiterTTL = 10 * time.Minute

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	sessions       *session.Store
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance: the catalog source with its
// optional taxonomy cache, the event producer and consumer, the listing
// session store and the HTTP router.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Catalog source.
	src, err := a.newSource(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Optional taxonomy cache.
	var taxonomyCache *cache.Source
	if cfg.RedisAddr != "" {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		taxonomyCache = cache.New(src, a.redis, cfg.TaxonomyCacheTTL, logger)
		src = taxonomyCache
		healthHandler.RegisterNonCritical("redis", taxonomyCache.Ping)
		logger.Info("taxonomy cache enabled",
			slog.String("addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.TaxonomyCacheTTL),
		)
	}

	// Search analytics and taxonomy invalidation events.
	var recorder listing.SearchRecorder
	if len(cfg.KafkaBrokers) > 0 {
		producerCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		producerCfg.Async = true
		a.producer = pkgkafka.NewProducer(producerCfg, logger)
		recorder = event.NewSearchProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)

		if taxonomyCache != nil {
			taxonomy := event.NewTaxonomyConsumer(taxonomyCache, logger)
			a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topics:   event.TaxonomyTopics(),
				MinBytes: 1,
				MaxBytes: 10e6, // 10 MB
			}, taxonomy.Handle, logger)
		}
		logger.Info("kafka initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Bool("taxonomy_consumer", a.consumer != nil),
		)
	}

	// Listing profiles and sessions.
	profiles := listing.NewRegistry(listing.DefaultProfiles(cfg.ListingDefaults())...)
	factory := func(p listing.Profile) *listing.Pipeline {
		return listing.New(p, listing.Deps{
			Source:       src,
			Logger:       logger,
			Recorder:     recorder,
			FetchTimeout: cfg.FetchTimeout,
		})
	}
	a.sessions = session.NewStore(factory, cfg.SessionTTL, cfg.MaxSessions, logger)
	logger.Info("listing profiles registered", slog.Any("profiles", profiles.Names()))

	// HTTP router.
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterTTL)
	listings := handler.NewListingHandler(profiles, a.sessions, factory, logger)
	router := handler.NewRouter(cfg, listings, healthHandler, a.limiter, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newSource builds the configured catalog backend and registers its
// readiness check.
func (a *App) newSource(ctx context.Context, healthHandler *health.Handler) (source.Source, error) {
	cfg := a.cfg

	switch cfg.SourceKind {
	case config.SourcePostgres:
		database.SetSlowQueryLogging(cfg.SlowQueryLog, a.logger)
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			DSN:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
			ReadOnly:        true,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
			a.logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}
		healthHandler.Register("postgres", pool.Ping)
		a.logger.Info("catalog source: postgres", slog.Int("max_conns", int(cfg.DBMaxConns)))
		return postgres.New(pool), nil

	default:
		httpCfg := httpclient.DefaultConfig()
		httpCfg.Timeout = cfg.CatalogTimeout
		httpCfg.MaxRetries = cfg.CatalogMaxRetries
		breaker := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig("catalog"),
			a.logger,
		)
		client := rest.New(cfg.CatalogURL, breaker, a.logger)
		healthHandler.Register("catalog", client.Ping)
		a.logger.Info("catalog source: rest", slog.String("url", cfg.CatalogURL))
		return client, nil
	}
}

// Run starts the HTTP server, the session sweeper, the rate limiter
// janitor and the taxonomy consumer, blocking until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go a.sessions.Run(ctx)
	go a.limiter.Run(ctx)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application in order:
// 1. HTTP server (drain in-flight requests)
// 2. Listing sessions (cancel pending fetches and debounce timers)
// 3. Kafka consumer and producer (flush queued search events)
// 4. Redis and Postgres
// 5. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.sessions.Close()

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases the connections opened by NewApp. It is safe to
// call on a partially built App.
func (a *App) closeResources() []error {
	var errs []error

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errs
}
