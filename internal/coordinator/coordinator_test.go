package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/alerts"
	"fleetguard/internal/config"
	"fleetguard/internal/source/generator"
	"fleetguard/internal/telemetry"
)

func TestCoordinatorStartRunTickStop(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.UpdateIntervalMs = 1000

	co := New(cfg, nil, nil)

	gen := generator.New(nil)
	gen.Register(generator.NodeProfile{
		NodeID: "n-01", LatencyMs: 40, CPUPct: 30, MemoryPct: 40,
		Status: telemetry.StatusHealthy, AvailabilityPct: 99.9, ThroughputOpsS: 500,
	})
	co.RegisterSource(gen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	co.Start(ctx)
	defer co.Stop()

	co.Engine.RunTick(ctx)
	time.Sleep(20 * time.Millisecond)

	node := co.GetNode("n-01")
	assert.True(t, node.Found)

	snap := co.GetFleetSnapshot()
	assert.Equal(t, 1, snap.Total)

	st := co.GetStatus()
	assert.True(t, st.Healthy)

	_ = co.GetRecentAlerts(alerts.Filter{})
	_ = co.GetRecentPredictions(10)
	_ = co.GetWorkflowHistory(10)
	metrics := co.GetImprovementMetrics()
	assert.GreaterOrEqual(t, metrics.Ratio, 0.0)
}

func TestCoordinatorSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir

	co := New(cfg, nil, nil)
	gen := generator.New(nil)
	gen.Register(generator.NodeProfile{NodeID: "n-02", Status: telemetry.StatusHealthy, ThroughputOpsS: 300})
	co.RegisterSource(gen)

	ctx, cancel := context.WithCancel(context.Background())
	co.Start(ctx)
	co.Engine.RunTick(ctx)
	require.NoError(t, co.saveSnapshot())
	co.Stop()
	cancel()

	co2 := New(cfg, nil, nil)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	co2.Start(ctx2)
	defer co2.Stop()

	node := co2.GetNode("n-02")
	assert.True(t, node.Found)
}
