package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTrackerSeedsAllComponentsUnhealthy(t *testing.T) {
	tr := NewTracker()
	snap := tr.Snapshot()
	assert.False(t, snap.Healthy)
	assert.Len(t, snap.Components, 6)
}

func TestReportMarksComponentHealthy(t *testing.T) {
	tr := NewTracker()
	tr.Report(ComponentBus, true, "running")
	snap := tr.Snapshot()
	assert.True(t, snap.Components[ComponentBus].Healthy)
}

func TestOverallHealthyOnlyWhenAllComponentsHealthy(t *testing.T) {
	tr := NewTracker()
	for _, name := range []string{ComponentBus, ComponentSources, ComponentTelemetry, ComponentAnalyzer, ComponentOrchestrator} {
		tr.Report(name, true, "ok")
	}
	assert.False(t, tr.Snapshot().Healthy)

	tr.Report(ComponentAlerts, true, "ok")
	assert.True(t, tr.Snapshot().Healthy)
}

func TestStaleComponentReportsUnhealthy(t *testing.T) {
	tr := NewTracker()
	fakeNow := time.Now()
	tr.now = func() time.Time { return fakeNow }
	tr.Report(ComponentBus, true, "ok")

	tr.now = func() time.Time { return fakeNow.Add(10 * time.Minute) }
	snap := tr.Snapshot()
	assert.False(t, snap.Components[ComponentBus].Healthy)
	assert.Contains(t, snap.Components[ComponentBus].Message, "stale")
}
