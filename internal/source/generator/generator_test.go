package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/telemetry"
)

func TestGeneratorCollectSteadyState(t *testing.T) {
	g := New(nil)
	g.Register(NodeProfile{
		NodeID: "n-01", LatencyMs: 40, CPUPct: 30, MemoryPct: 40, DiskPct: 20,
		ErrorRatePct: 1, ThroughputOpsS: 500, Status: telemetry.StatusHealthy,
		AvailabilityPct: 99.9, OverallPct: 35,
	})

	samples, err := g.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Valid())
	assert.Equal(t, "n-01", samples[0].NodeID)
}

func TestGeneratorAppliesDriftPerTick(t *testing.T) {
	g := New(nil)
	g.Register(NodeProfile{
		NodeID: "n-02", LatencyMs: 40, CPUPct: 50, Status: telemetry.StatusHealthy,
		Drift: Drift{LatencyMs: 10, CPUPct: 2},
	})

	first, _ := g.Collect(context.Background())
	second, _ := g.Collect(context.Background())
	third, _ := g.Collect(context.Background())

	assert.Equal(t, 40.0, first[0].LatencyMs)
	assert.Equal(t, 50.0, second[0].LatencyMs)
	assert.Equal(t, 60.0, third[0].LatencyMs)
	assert.Equal(t, 54.0, third[0].CPUPct)
}

func TestGeneratorRemoveStopsContributing(t *testing.T) {
	g := New(nil)
	g.Register(NodeProfile{NodeID: "n-03", Status: telemetry.StatusHealthy})
	g.Remove("n-03")

	samples, err := g.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, samples)
}
