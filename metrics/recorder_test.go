package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { New(reg) })
}

func TestObserveUpdateOutcomeIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveUpdateOutcome("applied", 3)
	r.ObserveUpdateOutcome("zero_reserve", 1)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found *io_prometheus_client.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "arbicore_world_pool_updates_total" {
			found = mf
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.Metric, 2)
}
