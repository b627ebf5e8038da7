package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSessionMetrics(reg, "polling")

	m.ActiveSessions.Inc()
	m.Rejections.WithLabelValues("forbidden").Inc()
	m.Rejections.WithLabelValues("forbidden").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues("forbidden")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "polling_session_active")
	assert.Contains(t, names, "polling_session_rejections_total")

	// a second set on a fresh registry must not collide
	assert.NotPanics(t, func() { NewSessionMetrics(prometheus.NewRegistry(), "polling") })
}

func TestNewProcessorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProcessorMetrics(reg, "polling", "processor")

	m.EventsProcessed.WithLabelValues("poll.ended").Inc()
	assert.Equal(t, 1, testutil.CollectAndCount(m.EventsProcessed))
	assert.Panics(t, func() { NewProcessorMetrics(reg, "polling", "processor") })
}
