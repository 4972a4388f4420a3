package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/freightdesk/shipledger/ledger/oteladapters"
)

func Test_RecordDuration_ProducesAHistogramInSeconds(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	collector := oteladapters.NewMetricsCollector(provider.Meter("test"))

	collector.RecordDuration("ledger_append_duration", 250*time.Millisecond, map[string]string{
		"outcome": "success",
	})

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))
	require.Len(t, resourceMetrics.ScopeMetrics, 1)
	require.Len(t, resourceMetrics.ScopeMetrics[0].Metrics, 1)

	recorded := resourceMetrics.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "ledger_append_duration", recorded.Name)

	histogram, ok := recorded.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.InDelta(t, 0.25, histogram.DataPoints[0].Sum, 0.001)
}

func Test_IncrementCounter_Accumulates(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	collector := oteladapters.NewMetricsCollector(provider.Meter("test"))

	for i := 0; i < 3; i++ {
		collector.IncrementCounter("ledger_append_conflicts", map[string]string{"outcome": "retried"})
	}

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))
	require.Len(t, resourceMetrics.ScopeMetrics, 1)

	recorded := resourceMetrics.ScopeMetrics[0].Metrics[0]
	sum, ok := recorded.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}
