package healing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/telemetry"
)

func stableSamples(n int, cpu float64) []telemetry.Sample {
	out := make([]telemetry.Sample, n)
	for i := range out {
		out[i] = telemetry.Sample{NodeID: "n-01", Timestamp: time.Now(), CPUPct: cpu, Status: telemetry.StatusHealthy}
	}
	return out
}

func TestComputeScalingDecisionConfidentWithStableHistory(t *testing.T) {
	samples := stableSamples(defaultSizingLookback, 60)
	d, err := computeScalingDecision(samples, "cpu", 60)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d.Confidence, sizingConfidenceThreshold)
	assert.True(t, d.ShouldScale())
	assert.GreaterOrEqual(t, d.RecommendedValue, 60.0)
}

func TestComputeScalingDecisionRejectsSparseHistory(t *testing.T) {
	samples := stableSamples(2, 60)
	_, err := computeScalingDecision(samples, "cpu", 60)
	assert.Error(t, err)
}

func TestComputeScalingDecisionRejectsZeroCurrent(t *testing.T) {
	samples := stableSamples(10, 60)
	_, err := computeScalingDecision(samples, "cpu", 0)
	assert.Error(t, err)
}

func TestComputeScalingDecisionRejectsUnknownResourceType(t *testing.T) {
	samples := stableSamples(10, 60)
	_, err := computeScalingDecision(samples, "disk", 60)
	assert.Error(t, err)
}

func TestScalePercentReportsRelativeDelta(t *testing.T) {
	d := &ScalingDecision{CurrentValue: 50, RecommendedValue: 75}
	assert.InDelta(t, 50.0, d.ScalePercent(), 0.01)
}
