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

import "fleetguard/internal/telemetry"

var fleetFactorWeights = [4]float64{0.3, 0.3, 0.25, 0.15}

// scoreFleet computes the four fleet-level factors (availability trend,
// correlated latency-up/throughput-down, cascade pressure, resource
// exhaustion) and combines them with the §4.5 weights.
func scoreFleet(prevAvail, currAvail float64, nodes []telemetry.Sample) (score float64, factors map[string]float64) {
	factors = make(map[string]float64, 4)

	availTrend := 0.0
	if prevAvail > currAvail {
		availTrend = clamp01((prevAvail - currAvail) / 10.0)
	}
	factors["availability_trend"] = availTrend

	var latSum, thrSum float64
	var unhealthy, exhausted int
	for _, n := range nodes {
		latSum += n.LatencyMs
		thrSum += n.ThroughputOpsS
		if n.Status != telemetry.StatusHealthy {
			unhealthy++
		}
		if n.CPUPct > 85 || n.MemoryPct > 85 {
			exhausted++
		}
	}

	total := float64(len(nodes))
	correlated := 0.0
	if total > 0 && latSum/total > 150 && thrSum/total < 50 {
		correlated = 0.8
	}
	factors["correlated_latency_throughput"] = correlated

	cascade := 0.0
	if total > 0 {
		cascade = float64(unhealthy) / total
	}
	factors["cascade_pressure"] = cascade

	exhaustion := 0.0
	if total > 0 {
		exhaustion = float64(exhausted) / total
	}
	factors["resource_exhaustion"] = exhaustion

	score = fleetFactorWeights[0]*availTrend + fleetFactorWeights[1]*correlated + fleetFactorWeights[2]*cascade + fleetFactorWeights[3]*exhaustion
	return score, factors
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
