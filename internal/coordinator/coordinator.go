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

// Package coordinator wires the Bus, Sample Store, Baseline Learner,
// Telemetry Engine, Predictive Analyzer, Healing Orchestrator and Alert
// Manager by composition and owns the process's init/start/stop
// lifecycle (§9's "Coordinator" redesign, replacing the heterogeneous
// component tree sharing mutable state via closures). Grounded on
// right-sizer's main.go top-level wiring order and its own legacy aiops
// Engine struct (owns the bus plus every subsystem behind one
// Start(ctx)), both since removed from this tree once fully mined.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetguard/internal/alerts"
	"fleetguard/internal/analyzer"
	"fleetguard/internal/bus"
	"fleetguard/internal/clock"
	"fleetguard/internal/config"
	"fleetguard/internal/flog"
	"fleetguard/internal/healing"
	"fleetguard/internal/snapshot"
	"fleetguard/internal/status"
	"fleetguard/internal/telemetry"
)

// Coordinator owns every core component and exposes the read-only query
// surface from §6. All of its methods are safe for concurrent use.
type Coordinator struct {
	cfg *config.Config
	clk clock.Clock

	log  *zap.Logger
	flog *flog.Logger

	Bus          *bus.Bus
	Store        *telemetry.Store
	Baselines    *telemetry.BaselineLearner
	Engine       *telemetry.Engine
	Analyzer     *analyzer.Analyzer
	Orchestrator *healing.Orchestrator
	Alerts       *alerts.Manager
	Status       *status.Tracker

	fleet fleetCache

	startedAt time.Time

	unsubFleet bus.Unsubscribe

	snapshotMu   sync.Mutex
	snapshotStop chan struct{}
	snapshotWG   sync.WaitGroup
}

// New constructs every component from cfg but does not start any
// goroutine; call Start to begin the telemetry loop and subscriptions.
func New(cfg *config.Config, clk clock.Clock, log *zap.Logger) *Coordinator {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	b := bus.New(bus.WithBufferSize(cfg.Bus.BufferSize), bus.WithLogger(log))
	store := telemetry.NewStore(telemetry.WithRetention(cfg.Retention()), telemetry.WithClock(clk.Now))
	baselines := telemetry.NewBaselineLearner(0.1)
	engine := telemetry.NewEngine(store, baselines, b, clk)

	az := analyzer.New(store, b, analyzer.Config{
		RiskThreshold:        cfg.Models.FailurePrediction.Threshold,
		TrendWindow:          cfg.Models.Degradation.TrendWindow,
		DegradationThreshold: cfg.Models.Degradation.ThresholdPct,
		FleetThreshold:       cfg.Models.FailurePrediction.Threshold,
	}, log)

	orch := healing.New(b, policyTable(cfg.Policies), healing.NewSimulatedEffector(store), clk, flog.New(cfg.LogLevel, "healing"))

	am := alerts.New(thresholdTable(cfg.Thresholds), b, clk, log)

	return &Coordinator{
		cfg: cfg, clk: clk, log: log, flog: flog.New(cfg.LogLevel, "coordinator"),
		Bus: b, Store: store, Baselines: baselines, Engine: engine,
		Analyzer: az, Orchestrator: orch, Alerts: am, Status: status.NewTracker(),
	}
}

// policyTable projects the config's named policy rows onto the Action
// keys the cooldown gate is keyed by. The strategy map's PolicyName
// field is the join key; a few Actions (performance_tuning) have no
// corresponding named policy in §6 and are left ungated (always
// permitted), matching right-sizer's "missing rule = allow" fallback in
// policy/engine.go.
func policyTable(p config.Policies) map[healing.Action]healing.CooldownPolicy {
	conv := func(c config.PolicyConfig) healing.CooldownPolicy {
		return healing.CooldownPolicy{MaxRetries: c.MaxRetries, CooldownMs: c.CooldownMs}
	}
	table := map[healing.Action]healing.CooldownPolicy{
		healing.ActionRestartNode:          conv(p.NodeRestart),
		healing.ActionRestartServices:      conv(p.ServiceRestart),
		healing.ActionScaleResources:       conv(p.ResourceScaling),
		healing.ActionOptimizeResources:    conv(p.ResourceScaling),
		healing.ActionIsolateAffectedNodes: conv(p.NodeIsolation),
		healing.ActionEmergencyScaling:     conv(p.ResourceScaling),
	}
	if !p.NodeRestart.Enabled {
		delete(table, healing.ActionRestartNode)
	}
	if !p.ServiceRestart.Enabled {
		delete(table, healing.ActionRestartServices)
	}
	if !p.ResourceScaling.Enabled {
		delete(table, healing.ActionScaleResources)
		delete(table, healing.ActionOptimizeResources)
		delete(table, healing.ActionEmergencyScaling)
	}
	if !p.NodeIsolation.Enabled {
		delete(table, healing.ActionIsolateAffectedNodes)
	}
	return table
}

func thresholdTable(t config.Thresholds) alerts.Thresholds {
	conv := func(p config.ThresholdPair) alerts.ThresholdPair {
		return alerts.ThresholdPair{Warning: p.Warning, Critical: p.Critical}
	}
	return alerts.Thresholds{
		alerts.KindLatency:      conv(t.Latency),
		alerts.KindCPU:          conv(t.CPU),
		alerts.KindMemory:       conv(t.Memory),
		alerts.KindDisk:         conv(t.Disk),
		alerts.KindErrorRate:    conv(t.ErrorRate),
		alerts.KindAvailability: conv(t.Availability),
		alerts.KindCost:         conv(t.Cost),
	}
}

// RegisterSource adds a telemetry.SampleSource to the engine's fan-out
// set. Must be called before Start.
func (c *Coordinator) RegisterSource(src telemetry.SampleSource) {
	c.Engine.RegisterSource(src)
}

// Start restores any persisted snapshot under cfg.DataDir, then starts
// the telemetry engine, the analyzer, the orchestrator and the alert
// manager, and begins the periodic snapshot loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.startedAt = c.clk.Now()

	if loaded, err := snapshot.Load(c.cfg.DataDir); err != nil {
		c.flog.Warn("snapshot restore failed: %v", err)
	} else {
		snapshot.Apply(loaded, c.snapshotSources())
		if loaded.Baselines.FleetBaselineCaptured {
			c.Engine.SeedBaselineThroughput(loaded.Baselines.FleetBaselineThroughput)
		}
		if len(loaded.Predictions.Predictions) > 0 || len(loaded.History.Samples) > 0 {
			c.flog.Info("restored snapshot from %s", c.cfg.DataDir)
		}
	}

	c.unsubFleet = c.Bus.Subscribe(telemetry.TopicFleetUpdate, "coordinator", func(msg bus.Message) {
		if snap, ok := msg.Payload.(telemetry.FleetSnapshot); ok {
			c.fleet.set(snap)
		}
	})

	c.Analyzer.Start()
	c.Orchestrator.Start()
	c.Alerts.Start(ctx)
	c.Engine.Start(ctx, c.cfg.UpdateInterval())

	c.Status.Report(status.ComponentBus, true, "running")
	c.Status.Report(status.ComponentSources, true, "running")
	c.Status.Report(status.ComponentTelemetry, true, "running")
	c.Status.Report(status.ComponentAnalyzer, true, "running")
	c.Status.Report(status.ComponentOrchestrator, true, "running")
	c.Status.Report(status.ComponentAlerts, true, "running")

	c.snapshotStop = make(chan struct{})
	c.snapshotWG.Add(1)
	go c.snapshotLoop()
}

// Stop halts every subsystem and takes one final snapshot.
func (c *Coordinator) Stop() {
	close(c.snapshotStop)
	c.snapshotWG.Wait()

	c.Engine.Stop()
	c.Orchestrator.Stop()
	c.Analyzer.Stop()
	c.Alerts.Stop()
	if c.unsubFleet != nil {
		c.unsubFleet()
	}
	c.Bus.Close()

	if err := c.saveSnapshot(); err != nil {
		c.flog.Warn("final snapshot save failed: %v", err)
	}
}

const snapshotCadence = 60 * time.Second

func (c *Coordinator) snapshotLoop() {
	defer c.snapshotWG.Done()
	ticker := c.clk.NewTicker(snapshotCadence)
	defer ticker.Stop()
	for {
		select {
		case <-c.snapshotStop:
			return
		case <-ticker.C():
			if err := c.saveSnapshot(); err != nil {
				c.flog.Warn("periodic snapshot save failed: %v", err)
			}
		}
	}
}

func (c *Coordinator) snapshotSources() snapshot.Sources {
	return snapshot.Sources{Store: c.Store, Baselines: c.Baselines, Analyzer: c.Analyzer, Orchestrator: c.Orchestrator}
}

func (c *Coordinator) saveSnapshot() error {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	baseline, captured := c.Engine.ImprovementRatio()
	return snapshot.Save(c.cfg.DataDir, c.snapshotSources(), c.startedAt, baseline, captured)
}
