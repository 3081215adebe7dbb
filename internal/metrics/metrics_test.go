package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	require.NotNil(t, r.FinderDuration)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestStepTimerRecordsObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	timer := r.StartFinderTimer("spatial")
	timer.Stop()

	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "arbitrage_search_duration_seconds" {
			hist = f
		}
	}
	require.NotNil(t, hist)
	require.Len(t, hist.Metric, 1)
	require.EqualValues(t, 1, hist.Metric[0].Histogram.GetSampleCount())
}

func TestOpportunitiesFoundIncrementsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.OpportunitiesFound.WithLabelValues("spatial").Add(3)
	r.OpportunitiesFound.WithLabelValues("cyclic").Add(1)

	require.Equal(t, float64(3), testCounterValue(t, r.OpportunitiesFound.WithLabelValues("spatial")))
	require.Equal(t, float64(1), testCounterValue(t, r.OpportunitiesFound.WithLabelValues("cyclic")))
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}
