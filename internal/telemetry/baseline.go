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

package telemetry

import "sync"

const defaultAlpha = 0.1

// BaselineLearner maintains a per-entity exponential moving average of
// the key performance fields, overwritten in place on every new sample
// (§4.4). It is owned exclusively by the Telemetry Engine.
type BaselineLearner struct {
	mu         sync.RWMutex
	alpha      float64
	baselines  map[string]Baseline
}

// NewBaselineLearner constructs a learner with the given smoothing
// factor. alpha <= 0 falls back to the 0.1 default.
func NewBaselineLearner(alpha float64) *BaselineLearner {
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	return &BaselineLearner{alpha: alpha, baselines: make(map[string]Baseline)}
}

// Observe folds one sample into the entity's baseline:
// baseline <- alpha*observed + (1-alpha)*baseline.
//
// The invariant this preserves: once established, no single update can
// move the baseline further than the gap between the prior baseline and
// the new observation (|new-old| <= |observed-old|), since alpha in
// (0, 1] makes every update a convex combination of the two.
func (b *BaselineLearner) Observe(s Sample) Baseline {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.baselines[s.NodeID]
	if !ok {
		prev = Baseline{
			NodeID:         s.NodeID,
			LatencyMs:      s.LatencyMs,
			ThroughputOpsS: s.ThroughputOpsS,
			ErrorRatePct:   s.ErrorRatePct,
			CPUPct:         s.CPUPct,
			MemoryPct:      s.MemoryPct,
			SampleCount:    1,
		}
		b.baselines[s.NodeID] = prev
		return prev
	}

	a := b.alpha
	next := Baseline{
		NodeID:         s.NodeID,
		LatencyMs:      a*s.LatencyMs + (1-a)*prev.LatencyMs,
		ThroughputOpsS: a*s.ThroughputOpsS + (1-a)*prev.ThroughputOpsS,
		ErrorRatePct:   a*s.ErrorRatePct + (1-a)*prev.ErrorRatePct,
		CPUPct:         a*s.CPUPct + (1-a)*prev.CPUPct,
		MemoryPct:      a*s.MemoryPct + (1-a)*prev.MemoryPct,
		SampleCount:    prev.SampleCount + 1,
	}
	b.baselines[s.NodeID] = next
	return next
}

// Baseline returns the current baseline for nodeID, if any sample has
// ever been observed for it.
func (b *BaselineLearner) Baseline(nodeID string) (Baseline, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bl, ok := b.baselines[nodeID]
	return bl, ok
}

// Seed overwrites the baseline for nodeID, used when restoring a
// persisted baseline snapshot on startup.
func (b *BaselineLearner) Seed(bl Baseline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baselines[bl.NodeID] = bl
}

// All returns every known baseline, used for snapshotting.
func (b *BaselineLearner) All() []Baseline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Baseline, 0, len(b.baselines))
	for _, bl := range b.baselines {
		out = append(out, bl)
	}
	return out
}
