package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryExposesCoreMetrics(t *testing.T) {
	r := NewRegistry()

	r.Metrics.EnvelopesRouted.WithLabelValues("cmd").Inc()
	r.Metrics.GraphsRunning.Set(1)

	families, err := r.Prometheus().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["flowmesh_dispatch_envelopes_routed_total"])
	assert.True(t, names["flowmesh_dispatch_graphs_running"])
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ext_things_total"})
	require.NoError(t, r.Register("ext_a", "things", c))

	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "ext_things2_total"})
	err := r.Register("ext_a", "things", c2)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ext_gone_total"})
	require.NoError(t, r.Register("ext_a", "gone", c))

	assert.True(t, r.Unregister("ext_a", "gone"))
	assert.False(t, r.Unregister("ext_a", "gone"))
}
