package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineNotEstablishedUnderTenSamples(t *testing.T) {
	learner := NewBaselineLearner(0.1)
	for i := 0; i < 9; i++ {
		bl := learner.Observe(Sample{NodeID: "n1", LatencyMs: 40})
		assert.False(t, bl.Established())
	}
	bl := learner.Observe(Sample{NodeID: "n1", LatencyMs: 40})
	assert.True(t, bl.Established())
}

func TestBaselineUpdateNeverOvershootsObservation(t *testing.T) {
	learner := NewBaselineLearner(0.1)
	for i := 0; i < 20; i++ {
		learner.Observe(Sample{NodeID: "n1", LatencyMs: 40})
	}
	before, ok := learner.Baseline("n1")
	require.True(t, ok)

	after := learner.Observe(Sample{NodeID: "n1", LatencyMs: 500})

	moved := math.Abs(after.LatencyMs - before.LatencyMs)
	gap := math.Abs(500 - before.LatencyMs)
	assert.LessOrEqual(t, moved, gap+1e-9)
}

func TestBaselineUnknownNodeNotFound(t *testing.T) {
	learner := NewBaselineLearner(0.1)
	_, ok := learner.Baseline("missing")
	assert.False(t, ok)
}
