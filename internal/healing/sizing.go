// Copyright (C) 2024 right-sizer contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package healing

import (
	"fmt"
	"math"
	"sort"

	"fleetguard/internal/telemetry"
)

const (
	defaultSizingLookback     = 1440
	sizingPercentile          = 0.95
	sizingBufferFactor        = 1.1
	sizingConfidenceThreshold = 0.70
)

// ScalingDecision is a confidence-weighted resource sizing
// recommendation, computed from recent telemetry rather than from a
// single observation.
type ScalingDecision struct {
	CurrentValue     float64
	RecommendedValue float64
	Confidence       float64
	Reason           string
}

// ShouldScale reports whether the recommendation is both confident and
// materially different from the current value.
func (d *ScalingDecision) ShouldScale() bool {
	if d == nil {
		return false
	}
	if d.Confidence < sizingConfidenceThreshold {
		return false
	}
	if d.CurrentValue == 0 {
		return false
	}
	return math.Abs(d.RecommendedValue-d.CurrentValue) > 0.01
}

// ScalePercent returns the percentage delta from current to recommended.
func (d *ScalingDecision) ScalePercent() float64 {
	if d == nil || d.CurrentValue == 0 {
		return 0
	}
	return (d.RecommendedValue - d.CurrentValue) / d.CurrentValue * 100
}

// computeScalingDecision recommends a new value for resourceType ("cpu"
// or "memory") from a window of samples: peak = max(p95, observed max),
// recommended = peak * buffer factor, confidence blends data
// sufficiency with variability.
func computeScalingDecision(samples []telemetry.Sample, resourceType string, current float64) (*ScalingDecision, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("insufficient historical data")
	}
	if current <= 0 {
		return nil, fmt.Errorf("current value must be positive")
	}

	values := make([]float64, len(samples))
	var sum, max float64
	for i, s := range samples {
		var v float64
		switch resourceType {
		case "cpu":
			v = s.CPUPct
		case "memory":
			v = s.MemoryPct
		default:
			return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
		}
		values[i] = v
		sum += v
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	stddev := math.Sqrt(variance)

	peak := math.Max(percentile(values, sizingPercentile), max)
	recommended := peak * sizingBufferFactor
	if recommended <= 0 {
		recommended = current
	}

	confidence := sizingConfidence(len(values), mean, stddev)
	decision := &ScalingDecision{
		CurrentValue:     current,
		RecommendedValue: recommended,
		Confidence:       confidence,
		Reason:           fmt.Sprintf("peak %.2f at %.0fth percentile with buffer %.2f", peak, sizingPercentile*100, sizingBufferFactor),
	}
	if confidence < sizingConfidenceThreshold {
		return nil, fmt.Errorf("confidence %.2f below threshold %.2f", confidence, sizingConfidenceThreshold)
	}
	return decision, nil
}

func sizingConfidence(count int, mean, stddev float64) float64 {
	if count == 0 {
		return 0
	}
	dataComponent := math.Min(1.0, float64(count)/float64(defaultSizingLookback))
	stability := 1.0
	if mean > 0 {
		stability = 1.0 / (1.0 + stddev/mean)
	}
	return math.Min(1.0, dataComponent*0.6+stability*0.4)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
