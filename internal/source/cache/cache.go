// Package cache keeps the catalog taxonomy (categories and brands) in Redis
// in front of another source. Product listings are never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/source"
)

const keyPrefix = "storefront:taxonomy:"

// Kind names a cached taxonomy list.
type Kind string

const (
	KindCategories Kind = "categories"
	KindBrands     Kind = "brands"
)

var cacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_taxonomy_cache_requests_total",
		Help: "Taxonomy cache lookups by kind and result (hit, miss, error).",
	},
	[]string{"kind", "result"},
)

// Source decorates a source.Source with a Redis cache-aside layer for the
// taxonomy. Redis failures are logged and fall through to the inner source.
type Source struct {
	inner  source.Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps inner. A zero ttl disables caching.
func New(inner source.Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Source {
	return &Source{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ source.Source = (*Source)(nil)

// ListProducts passes through to the inner source.
func (s *Source) ListProducts(ctx context.Context, q url.Values) (*source.ProductPage, error) {
	return s.inner.ListProducts(ctx, q)
}

// Categories returns the cached category tree, loading it on a miss.
func (s *Source) Categories(ctx context.Context) ([]domain.Category, error) {
	return cached(ctx, s, KindCategories, s.inner.Categories)
}

// Brands returns the cached brand list, loading it on a miss.
func (s *Source) Brands(ctx context.Context) ([]domain.Brand, error) {
	return cached(ctx, s, KindBrands, s.inner.Brands)
}

// Invalidate drops the given lists, or every list when none are named.
func (s *Source) Invalidate(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = []Kind{KindCategories, KindBrands}
	}
	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, key(k))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del taxonomy: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(k Kind) string {
	return keyPrefix + string(k)
}

func cached[T any](ctx context.Context, s *Source, kind Kind, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.ttl <= 0 {
		return load(ctx)
	}

	data, err := s.client.Get(ctx, key(kind)).Bytes()
	switch {
	case err == nil:
		var items []T
		if err := json.Unmarshal(data, &items); err == nil {
			cacheRequests.WithLabelValues(string(kind), "hit").Inc()
			return items, nil
		}
		cacheRequests.WithLabelValues(string(kind), "error").Inc()
		s.logger.WarnContext(ctx, "discarding corrupt taxonomy cache entry", slog.String("kind", string(kind)))
	case errors.Is(err, redis.Nil):
		cacheRequests.WithLabelValues(string(kind), "miss").Inc()
	default:
		cacheRequests.WithLabelValues(string(kind), "error").Inc()
		s.logger.WarnContext(ctx, "taxonomy cache read failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := s.client.Set(ctx, key(kind), data, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "taxonomy cache write failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
	return items, nil
}
