// Package event connects the storefront to the marketplace event bus.
package event

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/utafrali/storefront/internal/listing"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// TopicStorefrontSearched carries completed catalog searches.
const TopicStorefrontSearched = "ecommerce.storefront.searched"

// AggregateTypeSearch is the aggregate type of search events.
const AggregateTypeSearch = "search"

// SourceStorefront identifies events originating from the storefront.
const SourceStorefront = "storefront-bff"

// SearchedData is the payload for a storefront.searched event.
type SearchedData struct {
	Profile   string     `json:"profile"`
	Query     string     `json:"query"`
	Results   int        `json:"results"`
	Filters   url.Values `json:"filters,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

// Publisher is the subset of *pkgkafka.Producer the search recorder uses.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// SearchProducer publishes completed searches for analytics.
type SearchProducer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewSearchProducer creates a search analytics producer.
func NewSearchProducer(kafka Publisher, logger *slog.Logger) *SearchProducer {
	return &SearchProducer{kafka: kafka, logger: logger}
}

var _ listing.SearchRecorder = (*SearchProducer)(nil)

// RecordSearch publishes e. Failures are logged; analytics never fail a
// listing.
func (p *SearchProducer) RecordSearch(ctx context.Context, e listing.SearchEvent) {
	data := SearchedData{
		Profile:   e.Profile,
		Query:     e.Query,
		Results:   e.Results,
		Filters:   e.Filters,
		SessionID: logger.SessionIDFromContext(ctx),
	}

	event, err := pkgkafka.NewEvent(TopicStorefrontSearched, e.Profile, AggregateTypeSearch, SourceStorefront, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build search event", slog.String("error", err.Error()))
		return
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, TopicStorefrontSearched, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish search event",
			slog.String("profile", e.Profile),
			slog.String("error", err.Error()),
		)
	}
}
