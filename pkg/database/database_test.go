package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeStats struct{}

func (fakeStats) AcquiredConns() int32        { return 2 }
func (fakeStats) IdleConns() int32            { return 3 }
func (fakeStats) TotalConns() int32           { return 5 }
func (fakeStats) MaxConns() int32             { return 10 }
func (fakeStats) AcquireCount() int64         { return 42 }
func (fakeStats) EmptyAcquireCount() int64    { return 1 }
func (fakeStats) CanceledAcquireCount() int64 { return 0 }

func TestRetryBackoff_Bounds(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		got := retryBackoff(attempt)
		assert.GreaterOrEqual(t, got, base*3/4)
		assert.LessOrEqual(t, got, base*5/4)
	}
}

func TestNewPostgresPool_InvalidDSN(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), PostgresConfig{DSN: "::not a dsn::"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres config")
}

func TestPoolStatsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(newPoolStatsCollector(func() PoolStats { return fakeStats{} }, "storefront")))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64, len(families))
	for _, fam := range families {
		m := fam.GetMetric()[0]
		assert.Equal(t, "storefront", m.GetLabel()[0].GetValue())
		if g := m.GetGauge(); g != nil {
			values[fam.GetName()] = g.GetValue()
		} else {
			values[fam.GetName()] = m.GetCounter().GetValue()
		}
	}

	assert.Len(t, values, 7)
	assert.Equal(t, float64(2), values["db_pool_acquired_connections"])
	assert.Equal(t, float64(10), values["db_pool_max_connections"])
	assert.Equal(t, float64(42), values["db_pool_acquire_count_total"])
}

func TestTraceQuery_RecordsSpanAndSlowQuery(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "ListProducts", "SELECT 1")
	time.Sleep(time.Millisecond)
	end(errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.ListProducts", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, buf.String(), "slow query detected")
}
