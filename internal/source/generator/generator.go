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

// Package generator is a deterministic SampleSource used by tests and
// demos in place of a real infrastructure adapter (§4.3: "test adapters
// are deterministic generators").
package generator

import (
	"context"
	"sync"

	"fleetguard/internal/clock"
	"fleetguard/internal/telemetry"
)

// NodeProfile is a fixed recipe for one simulated node: constant
// performance figures plus optional per-tick drift, so a scenario can
// script a steady state, a degrading node, or a fleet-wide stress
// pattern deterministically (no randomness involved).
type NodeProfile struct {
	NodeID string

	LatencyMs      float64
	ThroughputOpsS float64
	ErrorRatePct   float64
	CPUPct         float64
	MemoryPct      float64
	DiskPct        float64
	Status         telemetry.Status
	AvailabilityPct float64
	OverallPct      float64

	// Drift is added to the corresponding field on every tick after the
	// first, letting a scenario script gradual degradation.
	Drift Drift
}

// Drift holds the optional per-tick deltas for a NodeProfile. A zero
// Drift leaves the profile's figures constant across ticks.
type Drift struct {
	LatencyMs    float64
	ErrorRatePct float64
	CPUPct       float64
	MemoryPct    float64
	DiskPct      float64
}

// Generator produces one Sample per registered NodeProfile on every
// Collect call, applying that profile's accumulated drift.
type Generator struct {
	clk clock.Clock

	mu       sync.Mutex
	profiles map[string]*NodeProfile
	ticks    map[string]int
}

// New constructs a Generator. clk may be nil, in which case the system
// clock is used for sample timestamps.
func New(clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Generator{clk: clk, profiles: make(map[string]*NodeProfile), ticks: make(map[string]int)}
}

// Register adds or replaces a node's profile.
func (g *Generator) Register(p NodeProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := p
	g.profiles[p.NodeID] = &cp
}

// Remove drops a node's profile so it stops contributing samples.
func (g *Generator) Remove(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.profiles, nodeID)
	delete(g.ticks, nodeID)
}

// Collect implements telemetry.SampleSource.
func (g *Generator) Collect(_ context.Context) ([]telemetry.Sample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	out := make([]telemetry.Sample, 0, len(g.profiles))
	for id, p := range g.profiles {
		tick := g.ticks[id]
		g.ticks[id] = tick + 1
		mult := float64(tick)

		out = append(out, telemetry.Sample{
			NodeID:          id,
			Timestamp:       now,
			LatencyMs:       clampNonNeg(p.LatencyMs + mult*p.Drift.LatencyMs),
			ThroughputOpsS:  clampNonNeg(p.ThroughputOpsS),
			ErrorRatePct:    clampPct(p.ErrorRatePct + mult*p.Drift.ErrorRatePct),
			CPUPct:          clampPct(p.CPUPct + mult*p.Drift.CPUPct),
			MemoryPct:       clampPct(p.MemoryPct + mult*p.Drift.MemoryPct),
			DiskPct:         clampPct(p.DiskPct + mult*p.Drift.DiskPct),
			Status:          p.Status,
			AvailabilityPct: clampPct(p.AvailabilityPct),
			OverallPct:      clampPct(p.OverallPct),
		})
	}
	return out, nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
