package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/internal/telemetry"
)

func samplesOf(n int, mutate func(i int) telemetry.Sample) []telemetry.Sample {
	out := make([]telemetry.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = mutate(i)
	}
	return out
}

func TestScoreNodeRiskRequiresThirtySamples(t *testing.T) {
	few := samplesOf(10, func(i int) telemetry.Sample {
		return telemetry.Sample{Status: telemetry.StatusHealthy}
	})
	_, _, ok := scoreNodeRisk(few)
	assert.False(t, ok)
}

func TestScoreNodeRiskCriticalDegradation(t *testing.T) {
	samples := samplesOf(40, func(i int) telemetry.Sample {
		return telemetry.Sample{
			LatencyMs: 220, ErrorRatePct: 15, CPUPct: 96, MemoryPct: 92, DiskPct: 96,
			Status: telemetry.StatusDegraded,
		}
	})
	score, factors, ok := scoreNodeRisk(samples)
	require.True(t, ok)
	require.NotNil(t, factors)
	assert.Greater(t, score, 0.8)
	assert.Equal(t, SeverityCritical, SeverityForScore(score))
}

func TestScoreNodeRiskHealthySteadyStateNoPrediction(t *testing.T) {
	samples := samplesOf(40, func(i int) telemetry.Sample {
		return telemetry.Sample{
			LatencyMs: 40, ErrorRatePct: 1, CPUPct: 30, MemoryPct: 40, DiskPct: 20,
			Status: telemetry.StatusHealthy,
		}
	})
	score, _, ok := scoreNodeRisk(samples)
	require.True(t, ok)
	assert.LessOrEqual(t, score, 0.7)
}

func TestRiskScoreBoundaryAtSevenTenthsDoesNotFire(t *testing.T) {
	// A risk score of exactly 0.7 must not emit (strict >), per the
	// boundary-behavior testable property.
	assert.False(t, 0.7 > DefaultConfig().RiskThreshold)
}

func TestConfidenceBoundaryAtSixTenthsDoesNotTriggerHealing(t *testing.T) {
	assert.False(t, 0.6 > 0.6)
}

func TestSeverityForScoreTiers(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityForScore(0.81))
	assert.Equal(t, SeverityHigh, SeverityForScore(0.61))
	assert.Equal(t, SeverityMedium, SeverityForScore(0.41))
	assert.Equal(t, SeverityLow, SeverityForScore(0.4))
}

func TestTimeframeForScoreTiers(t *testing.T) {
	assert.Equal(t, "5 min", TimeframeForScore(0.91))
	assert.Equal(t, "30 min", TimeframeForScore(0.71))
	assert.Equal(t, "2 h", TimeframeForScore(0.51))
	assert.Equal(t, "6+ h", TimeframeForScore(0.5))
}
