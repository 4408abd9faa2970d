package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/bus"
)

type fakeSource struct {
	samples []Sample
	err     error
}

func (f fakeSource) Collect(ctx context.Context) ([]Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.samples, nil
}

func TestEngineRunTickPublishesNodeAndFleetUpdates(t *testing.T) {
	b := bus.New()
	defer b.Close()
	store := NewStore()
	baseline := NewBaselineLearner(0.1)
	engine := NewEngine(store, baseline, b, nil)

	var mu sync.Mutex
	var nodeUpdates []NodeUpdate
	var fleetUpdates []FleetSnapshot

	b.Subscribe(TopicNodeUpdate, "t", func(m bus.Message) {
		mu.Lock()
		defer mu.Unlock()
		nodeUpdates = append(nodeUpdates, m.Payload.(NodeUpdate))
	})
	b.Subscribe(TopicFleetUpdate, "t", func(m bus.Message) {
		mu.Lock()
		defer mu.Unlock()
		fleetUpdates = append(fleetUpdates, m.Payload.(FleetSnapshot))
	})

	now := time.Now()
	engine.RegisterSource(fakeSource{samples: []Sample{
		{NodeID: "n1", Timestamp: now, CPUPct: 10, MemoryPct: 10, DiskPct: 10, AvailabilityPct: 100, OverallPct: 10, Status: StatusHealthy, ThroughputOpsS: 100},
		{NodeID: "n2", Timestamp: now, CPUPct: 20, MemoryPct: 20, DiskPct: 10, AvailabilityPct: 100, OverallPct: 20, Status: StatusDegraded, ThroughputOpsS: 50},
	}})

	engine.RunTick(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(nodeUpdates) == 2 && len(fleetUpdates) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, fleetUpdates[0].Total)
	assert.Equal(t, 1, fleetUpdates[0].HealthyCount)
	assert.InDelta(t, 150.0, fleetUpdates[0].TotalThroughput, 0.001)
}

func TestEngineCapturesBaselineOnFirstTick(t *testing.T) {
	b := bus.New()
	defer b.Close()
	engine := NewEngine(NewStore(), NewBaselineLearner(0.1), b, nil)

	var mu sync.Mutex
	var events []ImprovementEvent
	b.Subscribe(TopicImprovement, "t", func(m bus.Message) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, m.Payload.(ImprovementEvent))
	})

	now := time.Now()
	engine.RegisterSource(fakeSource{samples: []Sample{
		{NodeID: "n1", Timestamp: now, Status: StatusHealthy, ThroughputOpsS: 100, AvailabilityPct: 100},
	}})
	engine.RunTick(context.Background())
	engine.RunTick(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, 1.0, events[0].Ratio, 0.001, "ratio on the baseline-capturing tick must be 1.0")
	assert.InDelta(t, 1.0, events[1].Ratio, 0.001)
}

func TestEngineSeededBaselineWinsOverFirstTickCapture(t *testing.T) {
	b := bus.New()
	defer b.Close()
	engine := NewEngine(NewStore(), NewBaselineLearner(0.1), b, nil)
	engine.SeedBaselineThroughput(200)

	var mu sync.Mutex
	var events []ImprovementEvent
	b.Subscribe(TopicImprovement, "t", func(m bus.Message) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, m.Payload.(ImprovementEvent))
	})

	now := time.Now()
	engine.RegisterSource(fakeSource{samples: []Sample{
		{NodeID: "n1", Timestamp: now, Status: StatusHealthy, ThroughputOpsS: 100, AvailabilityPct: 100},
	}})
	engine.RunTick(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, 0.5, events[0].Ratio, 0.001, "persisted baseline must win over first-tick capture")
}

type erroringSource struct{}

func (erroringSource) Collect(ctx context.Context) ([]Sample, error) {
	return nil, context.DeadlineExceeded
}

func TestEngineSourceStallDoesNotHaltTick(t *testing.T) {
	b := bus.New()
	defer b.Close()
	engine := NewEngine(NewStore(), NewBaselineLearner(0.1), b, nil)
	engine.RegisterSource(erroringSource{})

	engine.RunTick(context.Background())
	assert.Equal(t, int64(1), engine.ErrorCount())
}
