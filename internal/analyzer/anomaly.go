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

package analyzer

import (
	"math"

	"fleetguard/internal/telemetry"
)

// deviation computes max(|observed-baseline|/baseline) over the five
// baseline fields, mirroring the z-score-style ratio check
// right-sizer's alerts/detector.go applies to a single field, generalized
// here to the full baseline vector (§4.5 PerformanceAnomaly).
func deviation(s telemetry.Sample, b telemetry.Baseline) float64 {
	ratio := func(observed, baseline float64) float64 {
		if baseline == 0 {
			if observed == 0 {
				return 0
			}
			return 1
		}
		return math.Abs(observed-baseline) / baseline
	}

	d := ratio(s.LatencyMs, b.LatencyMs)
	d = math.Max(d, ratio(s.ThroughputOpsS, b.ThroughputOpsS))
	d = math.Max(d, ratio(s.ErrorRatePct, b.ErrorRatePct))
	d = math.Max(d, ratio(s.CPUPct, b.CPUPct))
	d = math.Max(d, ratio(s.MemoryPct, b.MemoryPct))
	return d
}

// detectAnomaly requires an established baseline; emits when deviation
// exceeds 0.5, severity High above 0.8 else Medium.
func detectAnomaly(s telemetry.Sample, b telemetry.Baseline) (dev float64, severity Severity, fire bool) {
	if !b.Established() {
		return 0, "", false
	}
	dev = deviation(s, b)
	if dev <= 0.5 {
		return dev, "", false
	}
	if dev > 0.8 {
		return dev, SeverityHigh, true
	}
	return dev, SeverityMedium, true
}

const defaultTrendWindow = 300
const defaultDegradationThresholdPct = 15.0
const trendDeadBandPct = 5.0

// relativeChange is the first-to-last relative change used by the
// degradation trend check (§4.5): a plain endpoint comparison, not a
// least-squares regression, distinct from the linear-regression trend
// right-sizer's memstore.calculateTrend computes for its own dashboards.
func relativeChange(first, last float64) float64 {
	if first == 0 {
		if last == 0 {
			return 0
		}
		return 1
	}
	return (last - first) / first
}

// detectDegradation evaluates independent monotonic trends on latency,
// throughput and error_rate over the trend window and accumulates a
// score: +0.4 rising latency, +0.4 falling throughput, +0.2 rising
// error rate. Fires when score*100 exceeds thresholdPct (§4.5).
func detectDegradation(window []telemetry.Sample, thresholdPct float64) (scorePct float64, fire bool) {
	if len(window) < 2 {
		return 0, false
	}
	if thresholdPct <= 0 {
		thresholdPct = defaultDegradationThresholdPct
	}

	first, last := window[0], window[len(window)-1]

	var score float64
	if latChange := relativeChange(first.LatencyMs, last.LatencyMs); latChange > trendDeadBandPct/100 {
		score += 0.4
	}
	if thrChange := relativeChange(first.ThroughputOpsS, last.ThroughputOpsS); thrChange < -trendDeadBandPct/100 {
		score += 0.4
	}
	if errChange := relativeChange(first.ErrorRatePct, last.ErrorRatePct); errChange > trendDeadBandPct/100 {
		score += 0.2
	}

	scorePct = score * 100
	return scorePct, scorePct > thresholdPct
}
