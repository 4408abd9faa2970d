package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/analyzer"
	"fleetguard/internal/clock"
	"fleetguard/internal/healing"
	"fleetguard/internal/telemetry"
)

func buildSources(t *testing.T) Sources {
	t.Helper()
	store := telemetry.NewStore()
	store.Ingest(telemetry.Sample{
		NodeID: "n-01", Timestamp: time.Now(), Status: telemetry.StatusHealthy,
		CPUPct: 30, MemoryPct: 40, AvailabilityPct: 99, ThroughputOpsS: 500,
	})

	baselines := telemetry.NewBaselineLearner(0.2)
	baselines.Observe(telemetry.Sample{NodeID: "n-01", ThroughputOpsS: 500, LatencyMs: 20})

	az := analyzer.New(store, nil, analyzer.DefaultConfig(), nil)
	orch := healing.New(nil, map[healing.Action]healing.CooldownPolicy{}, healing.NewSimulatedEffector(store), clock.System{}, nil)

	return Sources{Store: store, Baselines: baselines, Analyzer: az, Orchestrator: orch}
}

func TestSaveWritesAllSixFiles(t *testing.T) {
	dir := t.TempDir()
	src := buildSources(t)

	err := Save(dir, src, time.Now().Add(-time.Hour), 400, true)
	require.NoError(t, err)

	for _, name := range []string{
		fileMetricsHistory, filePredictions, fileBaseline,
		fileHealingHistory, fileHealingMetrics, fileSessionSummary,
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestLoadOnEmptyDirReturnsZeroValueNotError(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, loaded.History.Samples)
	assert.Empty(t, loaded.Baselines.Nodes)
}

func TestSaveThenLoadRoundTripsSampleRing(t *testing.T) {
	dir := t.TempDir()
	src := buildSources(t)
	require.NoError(t, Save(dir, src, time.Now(), 0, false))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Contains(t, loaded.History.Samples, "n-01")
	assert.Len(t, loaded.History.Samples["n-01"], 1)
	assert.Equal(t, 500.0, loaded.History.Samples["n-01"][0].ThroughputOpsS)

	require.Len(t, loaded.Baselines.Nodes, 1)
	assert.Equal(t, "n-01", loaded.Baselines.Nodes[0].NodeID)
}

func TestApplyRestoresStoreAndBaselines(t *testing.T) {
	dir := t.TempDir()
	src := buildSources(t)
	require.NoError(t, Save(dir, src, time.Now(), 0, false))

	loaded, err := Load(dir)
	require.NoError(t, err)

	fresh := buildSources(t)
	fresh.Store = telemetry.NewStore()
	fresh.Baselines = telemetry.NewBaselineLearner(0.1)
	Apply(loaded, fresh)

	assert.Equal(t, []string{"n-01"}, fresh.Store.NodeIDs())
	_, ok := fresh.Baselines.Baseline("n-01")
	assert.True(t, ok)
}
