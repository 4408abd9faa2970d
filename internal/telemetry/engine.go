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

import (
	"context"
	"sync"
	"time"

	"fleetguard/internal/bus"
	"fleetguard/internal/clock"
	"fleetguard/internal/fgerrors"
	"fleetguard/internal/flog"
)

// SampleSource is any collaborator that can produce fresh Samples on
// demand. Production adapters query real infrastructure (see
// internal/source/k8s); test adapters are deterministic generators.
type SampleSource interface {
	Collect(ctx context.Context) ([]Sample, error)
}

// Topic names published by the engine, matching the bus-topic table.
const (
	TopicNodeUpdate  = "telemetry.node"
	TopicFleetUpdate = "telemetry.fleet"
	TopicImprovement = "improvement"
)

// NodeUpdate is the payload published on TopicNodeUpdate: the raw
// sample plus the node's baseline after that sample was folded in.
type NodeUpdate struct {
	Sample   Sample
	Baseline Baseline
}

// ImprovementEvent is the payload published on TopicImprovement.
type ImprovementEvent struct {
	BaselineThroughput float64
	CurrentThroughput  float64
	Ratio              float64
}

// staleEntry remembers a node's last sample so it can still contribute
// to the fleet rollup for exactly one tick of silence.
type staleEntry struct {
	sample Sample
	tick   int64
}

// Engine drives sampling at a configurable base period, fans out to
// every registered SampleSource, writes results to the Store, folds
// them into the BaselineLearner, derives the FleetSnapshot, and
// publishes per_node_update / fleet_update on the Bus (§4.3).
type Engine struct {
	store    *Store
	baseline *BaselineLearner
	bus      *bus.Bus
	clk      clock.Clock

	mu      sync.Mutex
	sources []SampleSource
	stale   map[string]staleEntry
	tick    int64

	baselineCaptured   bool
	baselineThroughput float64

	errCount int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEngine constructs a Telemetry Engine.
func NewEngine(store *Store, baseline *BaselineLearner, b *bus.Bus, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		store:    store,
		baseline: baseline,
		bus:      b,
		clk:      clk,
		stale:    make(map[string]staleEntry),
		stop:     make(chan struct{}),
	}
}

// RegisterSource adds a SampleSource to the fan-out set. Not safe to
// call concurrently with Start.
func (e *Engine) RegisterSource(src SampleSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = append(e.sources, src)
}

// SeedBaselineThroughput restores a persisted baseline-capture value on
// startup, taking precedence over the first-tick capture (§9 open
// question: persisted baseline wins if present).
func (e *Engine) SeedBaselineThroughput(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baselineCaptured = true
	e.baselineThroughput = v
}

// Start begins periodic sampling at the given period until ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context, period time.Duration) {
	ticker := e.clk.NewTicker(period)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C():
				e.RunTick(ctx)
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
}

// RunTick runs one sampling cycle synchronously; exported so tests and
// the scenario harness can drive ticks deterministically instead of
// waiting on wall-clock time.
func (e *Engine) RunTick(ctx context.Context) {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	sources := append([]SampleSource(nil), e.sources...)
	e.mu.Unlock()

	var samples []Sample
	for _, src := range sources {
		collected, err := src.Collect(ctx)
		if err != nil {
			e.errCount++
			flog.Warn("sample source stalled: %v", fgerrors.SourceStall("telemetry.collect", err.Error()))
			continue
		}
		samples = append(samples, collected...)
	}

	now := e.clk.Now()
	seen := make(map[string]bool, len(samples))
	for _, s := range samples {
		if !s.Valid() {
			flog.Error("dropping invalid sample: %v", fgerrors.InternalInvariant("telemetry.ingest", "sample violates §3 invariants"))
			continue
		}
		e.store.Ingest(s)
		bl := e.baseline.Observe(s)
		e.mu.Lock()
		e.stale[s.NodeID] = staleEntry{sample: s, tick: tick}
		e.mu.Unlock()
		seen[s.NodeID] = true

		e.bus.Publish(TopicNodeUpdate, NodeUpdate{Sample: s, Baseline: bl})
	}

	snapshot := e.rollup(now, tick, samples, seen)
	e.bus.Publish(TopicFleetUpdate, snapshot)
	e.maybeEmitImprovement(snapshot)
}

// rollup computes the FleetSnapshot for this tick. Nodes with no sample
// this tick contribute their last known value only if within one-tick
// staleness window (§4.3).
func (e *Engine) rollup(now time.Time, tick int64, fresh []Sample, seen map[string]bool) FleetSnapshot {
	e.mu.Lock()
	contributing := make([]Sample, 0, len(fresh))
	contributing = append(contributing, fresh...)
	for id, entry := range e.stale {
		if seen[id] {
			continue
		}
		if tick-entry.tick <= 1 {
			contributing = append(contributing, entry.sample)
		} else {
			delete(e.stale, id)
		}
	}
	e.mu.Unlock()

	snap := FleetSnapshot{Timestamp: now}
	if len(contributing) == 0 {
		return snap
	}

	var latencySum, throughputSum, utilSum, costSum, availSum float64
	ids := make([]string, 0, len(contributing))
	for _, s := range contributing {
		latencySum += s.LatencyMs
		throughputSum += s.ThroughputOpsS
		utilSum += s.OverallPct
		availSum += s.AvailabilityPct
		if s.Cost != nil {
			costSum += s.Cost.Hourly
		}
		if s.Status == StatusHealthy {
			snap.HealthyCount++
		}
		ids = append(ids, s.NodeID)
	}

	n := float64(len(contributing))
	snap.Total = len(contributing)
	snap.AverageLatency = latencySum / n
	snap.TotalThroughput = throughputSum
	snap.UtilizationPct = utilSum / n
	snap.AvailabilityPct = availSum / n
	snap.HourlyCost = costSum
	snap.NodeIDs = ids
	return snap
}

// maybeEmitImprovement captures the baseline throughput on the first
// successful aggregate (unless a persisted baseline was already
// seeded), then reports current/baseline ratio every tick thereafter.
func (e *Engine) maybeEmitImprovement(snap FleetSnapshot) {
	if snap.Total == 0 {
		return
	}
	e.mu.Lock()
	if !e.baselineCaptured {
		e.baselineCaptured = true
		e.baselineThroughput = snap.TotalThroughput
	}
	baseline := e.baselineThroughput
	e.mu.Unlock()

	ratio := 1.0
	if baseline > 0 {
		ratio = snap.TotalThroughput / baseline
	}
	e.bus.Publish(TopicImprovement, ImprovementEvent{
		BaselineThroughput: baseline,
		CurrentThroughput:  snap.TotalThroughput,
		Ratio:              ratio,
	})
}

// ErrorCount returns the number of failed SampleSource collections so
// far (one per failing source per tick), for the status query surface.
func (e *Engine) ErrorCount() int64 {
	return e.errCount
}

// ImprovementRatio returns the latest captured improvement ratio
// inputs, for snapshotting.
func (e *Engine) ImprovementRatio() (baseline float64, captured bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baselineThroughput, e.baselineCaptured
}
