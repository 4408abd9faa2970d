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

// Package telemetry holds the Sample/FleetSnapshot/Baseline data model
// (§3), the per-entity ring-buffered Sample Store (§4.2), the
// exponential-moving-average Baseline Learner (§4.4), and the
// tick-driven Telemetry Engine that ties them together (§4.3).
package telemetry

import "time"

// Status is the fixed health-state enum every Sample carries.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusCritical  Status = "critical"
	StatusUnhealthy Status = "unhealthy"
	StatusFailed    Status = "failed"
)

// Cost is the optional cost block of a Sample.
type Cost struct {
	Hourly float64
	Daily  float64
}

// Sample is an immutable, one-instant record for one entity.
//
// Invariant: all percentages lie in [0, 100]; latency, throughput and
// counters are non-negative; Status is one of the fixed enum values.
type Sample struct {
	NodeID    string
	Timestamp time.Time

	// performance block
	LatencyMs       float64
	ThroughputOpsS  float64
	ErrorRatePct    float64
	CPUPct          float64
	MemoryPct       float64
	DiskPct         float64
	OperationsTotal float64

	// health block
	Status         Status
	AvailabilityPct float64
	UptimeMs        int64

	// utilization block
	OverallPct float64

	// optional cost block
	Cost *Cost
}

// Valid reports whether the sample satisfies the §3 invariants. Callers
// that construct samples outside of tests should check this and route
// violations to fgerrors.InternalInvariant rather than store them.
func (s Sample) Valid() bool {
	inRange := func(v float64) bool { return v >= 0 && v <= 100 }
	if !inRange(s.CPUPct) || !inRange(s.MemoryPct) || !inRange(s.DiskPct) || !inRange(s.AvailabilityPct) || !inRange(s.OverallPct) {
		return false
	}
	if s.LatencyMs < 0 || s.ThroughputOpsS < 0 || s.OperationsTotal < 0 || s.ErrorRatePct < 0 {
		return false
	}
	switch s.Status {
	case StatusHealthy, StatusDegraded, StatusCritical, StatusUnhealthy, StatusFailed:
	default:
		return false
	}
	return true
}

// FleetSnapshot is the cross-entity rollup computed once per tick.
type FleetSnapshot struct {
	Timestamp      time.Time
	Total          int
	HealthyCount   int
	AverageLatency float64
	TotalThroughput float64
	AvailabilityPct float64
	UtilizationPct  float64
	HourlyCost      float64
	NodeIDs         []string
}

// Baseline is the per-entity exponential-moving-average reference
// vector maintained by the Baseline Learner. It is "established" once
// SampleCount reaches EstablishedAt (10 by default).
type Baseline struct {
	NodeID         string
	LatencyMs      float64
	ThroughputOpsS float64
	ErrorRatePct   float64
	CPUPct         float64
	MemoryPct      float64
	SampleCount    int
}

// EstablishedAt is the sample-count floor beyond which a Baseline is
// usable by the analyzer.
const EstablishedAt = 10

// Established reports whether enough samples have been folded in.
func (b Baseline) Established() bool {
	return b.SampleCount >= EstablishedAt
}
