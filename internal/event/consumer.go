package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/source/cache"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// Kafka topic constants for taxonomy events published by the product service.
const (
	TopicCategoryCreated = "ecommerce.category.created"
	TopicCategoryUpdated = "ecommerce.category.updated"
	TopicCategoryDeleted = "ecommerce.category.deleted"
	TopicBrandCreated    = "ecommerce.brand.created"
	TopicBrandUpdated    = "ecommerce.brand.updated"
	TopicBrandDeleted    = "ecommerce.brand.deleted"
)

// TaxonomyTopics lists the topics the invalidation consumer subscribes to.
func TaxonomyTopics() []string {
	return []string{
		TopicCategoryCreated, TopicCategoryUpdated, TopicCategoryDeleted,
		TopicBrandCreated, TopicBrandUpdated, TopicBrandDeleted,
	}
}

// Invalidator drops cached taxonomy lists.
type Invalidator interface {
	Invalidate(ctx context.Context, kinds ...cache.Kind) error
}

// TaxonomyConsumer clears the taxonomy cache when categories or brands
// change, so new listing sessions see the change without waiting for the
// TTL.
type TaxonomyConsumer struct {
	cache  Invalidator
	logger *slog.Logger
}

// NewTaxonomyConsumer creates a consumer that invalidates c.
func NewTaxonomyConsumer(c Invalidator, logger *slog.Logger) *TaxonomyConsumer {
	return &TaxonomyConsumer{cache: c, logger: logger}
}

// Handle processes one taxonomy event.
func (c *TaxonomyConsumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	var kind cache.Kind
	switch pkgkafka.TopicDomain(event.EventType) {
	case "category":
		kind = cache.KindCategories
	case "brand":
		kind = cache.KindBrands
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	if err := c.cache.Invalidate(ctx, kind); err != nil {
		return fmt.Errorf("invalidate %s cache: %w", kind, err)
	}

	c.logger.InfoContext(ctx, "taxonomy cache invalidated",
		slog.String("kind", string(kind)),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}
