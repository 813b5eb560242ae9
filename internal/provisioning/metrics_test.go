package provisioning

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	m.ObservePhase("host", time.Second, nil)
	m.ObservePhase("incus", time.Second, errors.New("boom"))
	m.ObserveOperation("host", nil)
	m.ObserveOperation("host", nil)
	m.ObserveResource("profile", "created")
	m.ObserveResource("profile", "skipped")

	assert.InDelta(t, 1, testutil.ToFloat64(m.phaseTotal.WithLabelValues("host", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.phaseTotal.WithLabelValues("incus", "failure")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues("host", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resourcesTotal.WithLabelValues("profile", "skipped")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.phaseDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePhase("host", time.Second, nil)
		m.ObserveOperation("host", nil)
		m.ObserveResource("file", "created")
	})
}

func TestMetrics_WriteToTextfile(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.ObserveResource("container", "created")
	path := filepath.Join(t.TempDir(), "vibehost.prom")

	require.NoError(t, m.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `provisioning_resources_total{action="created",kind="container"} 1`))
}
