package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/listing"
	"github.com/utafrali/storefront/internal/source/cache"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// --- Mock Invalidator ---

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, kinds ...cache.Kind) error {
	args := m.Called(ctx, kinds)
	return args.Error(0)
}

// --- Fake kafka writer ---

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// --- Fake kafka reader ---

type fakeReader struct {
	msgs chan kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (r *fakeReader) Close() error                                         { return nil }

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEvent(eventType string) *pkgkafka.Event {
	return &pkgkafka.Event{
		EventID:       "evt-test-123",
		EventType:     eventType,
		AggregateID:   "agg-test-456",
		AggregateType: "category",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "product-service",
		Data:          json.RawMessage(`{"id":"agg-test-456"}`),
	}
}

// ============================================================
// TaxonomyConsumer
// ============================================================

func TestTaxonomyConsumer_InvalidatesByDomain(t *testing.T) {
	tests := []struct {
		eventType string
		kind      cache.Kind
	}{
		{TopicCategoryCreated, cache.KindCategories},
		{TopicCategoryUpdated, cache.KindCategories},
		{TopicCategoryDeleted, cache.KindCategories},
		{TopicBrandCreated, cache.KindBrands},
		{TopicBrandUpdated, cache.KindBrands},
		{TopicBrandDeleted, cache.KindBrands},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			inv := new(mockInvalidator)
			inv.On("Invalidate", mock.Anything, []cache.Kind{tt.kind}).Return(nil)

			c := NewTaxonomyConsumer(inv, newTestLogger())
			require.NoError(t, c.Handle(context.Background(), newTestEvent(tt.eventType)))
			inv.AssertExpectations(t)
		})
	}
}

func TestTaxonomyConsumer_UnknownEventIgnored(t *testing.T) {
	inv := new(mockInvalidator)
	c := NewTaxonomyConsumer(inv, newTestLogger())

	require.NoError(t, c.Handle(context.Background(), newTestEvent("ecommerce.order.created")))
	inv.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestTaxonomyConsumer_InvalidateError(t *testing.T) {
	inv := new(mockInvalidator)
	inv.On("Invalidate", mock.Anything, []cache.Kind{cache.KindBrands}).Return(errors.New("redis down"))

	c := NewTaxonomyConsumer(inv, newTestLogger())
	err := c.Handle(context.Background(), newTestEvent(TopicBrandUpdated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate brands cache")
}

func TestTaxonomyConsumer_ThroughKafkaConsumer(t *testing.T) {
	inv := new(mockInvalidator)
	done := make(chan struct{})
	inv.On("Invalidate", mock.Anything, []cache.Kind{cache.KindCategories}).
		Return(nil).
		Run(func(mock.Arguments) { close(done) })

	ev, err := pkgkafka.NewEvent(TopicCategoryUpdated, "cat-1", "category", "product-service", map[string]string{"id": "cat-1"})
	require.NoError(t, err)
	data, err := ev.Marshal()
	require.NoError(t, err)

	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	reader.msgs <- kafka.Message{Topic: TopicCategoryUpdated, Value: data}

	handler := NewTaxonomyConsumer(inv, newTestLogger())
	consumer := pkgkafka.NewConsumerWithReader(reader, "storefront-taxonomy", handler.Handle, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not handled")
	}
	cancel()
	require.NoError(t, <-errCh)
	inv.AssertExpectations(t)
}

// ============================================================
// SearchProducer
// ============================================================

func TestSearchProducer_Publishes(t *testing.T) {
	w := &fakeWriter{}
	producer := pkgkafka.NewProducerWithWriter(w, nil, newTestLogger())
	rec := NewSearchProducer(producer, newTestLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithSessionID(ctx, "sess-1")
	rec.RecordSearch(ctx, listing.SearchEvent{
		Profile: "search",
		Query:   "lamp",
		Results: 7,
		Filters: url.Values{"brand_id": {"b1"}},
	})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, TopicStorefrontSearched, msg.Topic)
	assert.Equal(t, "search", string(msg.Key))

	ev, err := pkgkafka.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, TopicStorefrontSearched, ev.EventType)
	assert.Equal(t, AggregateTypeSearch, ev.AggregateType)
	assert.Equal(t, SourceStorefront, ev.Source)
	assert.Equal(t, "corr-1", ev.CorrelationID)

	var data SearchedData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, SearchedData{
		Profile:   "search",
		Query:     "lamp",
		Results:   7,
		Filters:   url.Values{"brand_id": {"b1"}},
		SessionID: "sess-1",
	}, data)
}

func TestSearchProducer_PublishFailureIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	producer := pkgkafka.NewProducerWithWriter(w, nil, newTestLogger())
	rec := NewSearchProducer(producer, newTestLogger())

	assert.NotPanics(t, func() {
		rec.RecordSearch(context.Background(), listing.SearchEvent{Profile: "search", Query: "x"})
	})
	assert.Empty(t, w.msgs)
}
