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

// riskFactorWeights mirrors the weighted-factor table in §4.5 exactly.
var riskFactorWeights = map[string]float64{
	"latency_risk":      0.15,
	"latency_trend":     0.10,
	"error_rate_risk":    0.20,
	"cpu_risk":           0.15,
	"memory_risk":        0.15,
	"disk_risk":          0.10,
	"health_risk":        0.10,
	"variability_risk":   0.05,
}

const minSamplesForRisk = 30

// scoreNodeRisk computes the NodeFailure risk score and factor
// breakdown for a window of recent samples, newest last. Returns ok =
// false if there are fewer than 30 samples (§4.5 precondition).
func scoreNodeRisk(samples []telemetry.Sample) (score float64, factors map[string]float64, ok bool) {
	if len(samples) < minSamplesForRisk {
		return 0, nil, false
	}

	last := samples[len(samples)-1]
	factors = make(map[string]float64, len(riskFactorWeights))

	factors["latency_risk"] = stepScore(last.LatencyMs, 150, 0.8, 100, 0.6, 0.3)
	factors["latency_trend"] = latencyTrendRisk(samples)
	factors["error_rate_risk"] = stepScore(last.ErrorRatePct, 10, 0.9, 5, 0.7, 0.4)
	factors["cpu_risk"] = stepScore(last.CPUPct, 90, 0.8, 80, 0.6, 0.3)
	factors["memory_risk"] = stepScore(last.MemoryPct, 90, 0.8, 80, 0.6, 0.3)
	factors["disk_risk"] = stepScore(last.DiskPct, 95, 0.9, 85, 0.7, 0.4)
	factors["health_risk"] = healthRisk(last.Status)
	factors["variability_risk"] = variabilityRisk(samples)

	var weightedSum, weightSum float64
	for name, value := range factors {
		w := riskFactorWeights[name]
		weightedSum += w * value
		weightSum += w
	}
	if weightSum == 0 {
		return 0, factors, true
	}
	return weightedSum / weightSum, factors, true
}

// stepScore implements the "> high -> hi; > mid -> mid; else low"
// threshold ladder used by every §4.5 factor except latency_trend,
// health and variability.
func stepScore(value, highThreshold, highScore, midThreshold, midScore, lowScore float64) float64 {
	if value > highThreshold {
		return highScore
	}
	if value > midThreshold {
		return midScore
	}
	return lowScore
}

func latencyTrendRisk(samples []telemetry.Sample) float64 {
	first := samples[0].LatencyMs
	last := samples[len(samples)-1].LatencyMs
	if first <= 0 {
		if last > 0 {
			return 0.7
		}
		return 0.2
	}
	change := (last - first) / first
	if change > 0.05 {
		return 0.7
	}
	return 0.2
}

func healthRisk(status telemetry.Status) float64 {
	switch status {
	case telemetry.StatusHealthy:
		return 0.1
	case telemetry.StatusDegraded:
		return 0.6
	default:
		return 0.9
	}
}

// variabilityRisk scores sample variance of latency across the window.
func variabilityRisk(samples []telemetry.Sample) float64 {
	n := float64(len(samples))
	var sum float64
	for _, s := range samples {
		sum += s.LatencyMs
	}
	mean := sum / n

	var sqDiff float64
	for _, s := range samples {
		d := s.LatencyMs - mean
		sqDiff += d * d
	}
	variance := sqDiff / n

	if variance > 1000 {
		return 0.7
	}
	return 0.3
}

// SeverityForScore maps a risk/fleet score to its severity tier.
func SeverityForScore(score float64) Severity {
	switch {
	case score > 0.8:
		return SeverityCritical
	case score > 0.6:
		return SeverityHigh
	case score > 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// TimeframeForScore maps a risk score to its predicted timeframe label.
func TimeframeForScore(score float64) string {
	switch {
	case score > 0.9:
		return "5 min"
	case score > 0.7:
		return "30 min"
	case score > 0.5:
		return "2 h"
	default:
		return "6+ h"
	}
}

// recommendationsForFactors derives deterministic recommendations from
// which factors crossed their actionable thresholds.
func recommendationsForFactors(last telemetry.Sample) []Recommendation {
	var recs []Recommendation
	if last.LatencyMs > 100 {
		recs = append(recs, Recommendation{Priority: SeverityHigh, ActionLabel: "restart_services", Description: "elevated latency", EffectorTag: "restart_services"})
	}
	if last.ErrorRatePct > 5 {
		recs = append(recs, Recommendation{Priority: SeverityHigh, ActionLabel: "restart_services", Description: "elevated error rate", EffectorTag: "restart_services"})
	}
	if last.CPUPct > 80 {
		recs = append(recs, Recommendation{Priority: SeverityMedium, ActionLabel: "scale_resources", Description: "high cpu utilization", EffectorTag: "scale_resources"})
	}
	if last.MemoryPct > 80 {
		recs = append(recs, Recommendation{Priority: SeverityMedium, ActionLabel: "scale_resources", Description: "high memory utilization", EffectorTag: "scale_resources"})
	}
	if last.DiskPct > 85 {
		recs = append(recs, Recommendation{Priority: SeverityMedium, ActionLabel: "optimize_resources", Description: "high disk utilization", EffectorTag: "optimize_resources"})
	}
	return recs
}
