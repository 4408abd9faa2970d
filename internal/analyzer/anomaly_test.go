package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetguard/internal/telemetry"
)

func TestDetectAnomalyRequiresEstablishedBaseline(t *testing.T) {
	s := telemetry.Sample{LatencyMs: 500}
	b := telemetry.Baseline{LatencyMs: 40, SampleCount: 3}
	_, _, fire := detectAnomaly(s, b)
	assert.False(t, fire, "no PerformanceAnomaly before baseline is established")
}

func TestDetectAnomalyBaselineSpikeFiresHigh(t *testing.T) {
	s := telemetry.Sample{LatencyMs: 500, ThroughputOpsS: 100, ErrorRatePct: 1, CPUPct: 30, MemoryPct: 40}
	b := telemetry.Baseline{LatencyMs: 40, ThroughputOpsS: 100, ErrorRatePct: 1, CPUPct: 30, MemoryPct: 40, SampleCount: 15}
	dev, severity, fire := detectAnomaly(s, b)
	assert.True(t, fire)
	assert.Greater(t, dev, 0.8)
	assert.Equal(t, SeverityHigh, severity)
}

func TestDetectAnomalyBelowThresholdDoesNotFire(t *testing.T) {
	s := telemetry.Sample{LatencyMs: 45, ThroughputOpsS: 100, ErrorRatePct: 1, CPUPct: 30, MemoryPct: 40}
	b := telemetry.Baseline{LatencyMs: 40, ThroughputOpsS: 100, ErrorRatePct: 1, CPUPct: 30, MemoryPct: 40, SampleCount: 15}
	_, _, fire := detectAnomaly(s, b)
	assert.False(t, fire)
}

func TestDetectDegradationRisingLatencyFallingThroughput(t *testing.T) {
	window := []telemetry.Sample{
		{LatencyMs: 40, ThroughputOpsS: 100, ErrorRatePct: 1},
		{LatencyMs: 80, ThroughputOpsS: 60, ErrorRatePct: 1.5},
	}
	scorePct, fire := detectDegradation(window, defaultDegradationThresholdPct)
	assert.True(t, fire)
	assert.InDelta(t, 80.0, scorePct, 0.01)
}

func TestDetectDegradationStableWithinDeadBand(t *testing.T) {
	window := []telemetry.Sample{
		{LatencyMs: 40, ThroughputOpsS: 100, ErrorRatePct: 1},
		{LatencyMs: 41, ThroughputOpsS: 99, ErrorRatePct: 1.01},
	}
	_, fire := detectDegradation(window, defaultDegradationThresholdPct)
	assert.False(t, fire)
}
