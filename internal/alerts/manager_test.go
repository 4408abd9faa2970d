package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/bus"
	"fleetguard/internal/clock"
	"fleetguard/internal/telemetry"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) NewTicker(d time.Duration) clock.Ticker {
	return &noopTicker{ch: make(chan time.Time)}
}
func (f *fakeClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }

type noopTicker struct{ ch chan time.Time }

func (t *noopTicker) C() <-chan time.Time { return t.ch }
func (t *noopTicker) Stop()               {}

func testThresholds() Thresholds {
	return Thresholds{
		KindCPU:          ThresholdPair{Warning: 80, Critical: 90},
		KindAvailability: ThresholdPair{Warning: 98, Critical: 95},
	}
}

func TestCriticalCPUCrossingFiresCriticalAlert(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil)
	m.Start(context.Background())
	defer m.Stop()

	var received []Event
	b.Subscribe(TopicAlerts, "test", func(msg bus.Message) {
		received = append(received, msg.Payload.(Event))
	})

	m.evaluate("n-01", KindCPU, 96)

	require.Eventually(t, func() bool { return len(received) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, SeverityCritical, received[0].Alert.Severity)
	assert.Equal(t, EventFired, received[0].EventKind)
}

func TestAlertLifecycleAckThenResolve(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil)

	a := m.Fire(Alert{Kind: KindCPU, Severity: SeverityCritical, EntityRef: "n-01", Value: 96, Threshold: 90})
	require.NotNil(t, a)

	require.NoError(t, m.Acknowledge(a.ID, "op", "looking into it"))
	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.False(t, got.Resolved)
	assert.Len(t, got.Acknowledgments, 1)

	require.NoError(t, m.Resolve(a.ID))
	got, ok = m.Get(a.ID)
	require.True(t, ok)
	assert.True(t, got.Resolved)
	assert.False(t, got.Acknowledgments[0].Timestamp.Before(got.Timestamp))
}

func TestResolveIsIdempotent(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil)

	a := m.Fire(Alert{Kind: KindCPU, Severity: SeverityCritical, EntityRef: "n-01"})
	require.NoError(t, m.Resolve(a.ID))
	require.NoError(t, m.Resolve(a.ID))

	got, _ := m.Get(a.ID)
	assert.True(t, got.Resolved)
}

func TestDedupSuppressesRepeatWithinWindow(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil, WithDedupWindow(time.Minute))

	first := m.Fire(Alert{Kind: KindCPU, Severity: SeverityCritical, EntityRef: "n-01"})
	second := m.Fire(Alert{Kind: KindCPU, Severity: SeverityCritical, EntityRef: "n-01"})
	require.NotNil(t, first)
	assert.Nil(t, second)

	clk.now = clk.now.Add(2 * time.Minute)
	third := m.Fire(Alert{Kind: KindCPU, Severity: SeverityCritical, EntityRef: "n-01"})
	assert.NotNil(t, third)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestEscalateRaisesSeverityByOneTier(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil)

	a := m.Fire(Alert{Kind: KindCPU, Severity: SeverityWarning, EntityRef: "n-01"})
	require.NoError(t, m.Escalate(a.ID))
	got, _ := m.Get(a.ID)
	assert.Equal(t, SeverityError, got.Severity)
}

func TestAvailabilityLowerIsWorse(t *testing.T) {
	b := bus.New()
	defer b.Close()
	clk := &fakeClock{now: time.Now()}
	m := New(testThresholds(), b, clk, nil)

	m.onFleetUpdate(bus.Message{Payload: telemetry.FleetSnapshot{Total: 10, AvailabilityPct: 92}})
	alerts := m.All()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}
