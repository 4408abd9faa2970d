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

package coordinator

import (
	"sync"

	"fleetguard/internal/alerts"
	"fleetguard/internal/analyzer"
	"fleetguard/internal/healing"
	"fleetguard/internal/status"
	"fleetguard/internal/telemetry"
)

// fleetCache holds the last published FleetSnapshot so GetFleetSnapshot
// never blocks on the telemetry engine's own lock (§6: "never block
// longer than a single lock acquisition").
type fleetCache struct {
	mu   sync.RWMutex
	last telemetry.FleetSnapshot
}

func (f *fleetCache) set(s telemetry.FleetSnapshot) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
}

func (f *fleetCache) get() telemetry.FleetSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// NodeView is the response shape for GetNode: the latest sample plus
// its established baseline, if any.
type NodeView struct {
	Sample      telemetry.Sample
	Baseline    telemetry.Baseline
	HasBaseline bool
	Found       bool
}

// GetStatus implements get_status(): the component health rollup.
func (c *Coordinator) GetStatus() status.Report {
	return c.Status.Snapshot()
}

// GetFleetSnapshot implements get_fleet_snapshot().
func (c *Coordinator) GetFleetSnapshot() telemetry.FleetSnapshot {
	return c.fleet.get()
}

// GetNode implements get_node(id).
func (c *Coordinator) GetNode(id string) NodeView {
	latest := c.Store.AllLatest()
	sample, ok := latest[id]
	if !ok {
		return NodeView{}
	}
	bl, hasBl := c.Baselines.Baseline(id)
	return NodeView{Sample: sample, Baseline: bl, HasBaseline: hasBl, Found: true}
}

// GetRecentAlerts implements get_recent_alerts(filter).
func (c *Coordinator) GetRecentAlerts(f alerts.Filter) []alerts.Alert {
	return c.Alerts.Recent(f)
}

// AcknowledgeAlert implements acknowledge_alert(id, user).
func (c *Coordinator) AcknowledgeAlert(id, user, note string) error {
	return c.Alerts.Acknowledge(id, user, note)
}

// ResolveAlert implements resolve_alert(id).
func (c *Coordinator) ResolveAlert(id string) error {
	return c.Alerts.Resolve(id)
}

// GetRecentPredictions implements get_recent_predictions().
func (c *Coordinator) GetRecentPredictions(count int) []analyzer.Prediction {
	return c.Analyzer.Recent(count)
}

// GetWorkflowHistory implements get_workflow_history().
func (c *Coordinator) GetWorkflowHistory(count int) []healing.Workflow {
	return c.Orchestrator.History(count)
}

// ImprovementMetrics is the response shape for get_improvement_metrics().
type ImprovementMetrics struct {
	BaselineThroughput float64
	CurrentThroughput  float64
	Ratio              float64
	Workflows          healing.Metrics
}

// GetImprovementMetrics implements get_improvement_metrics().
func (c *Coordinator) GetImprovementMetrics() ImprovementMetrics {
	baseline, _ := c.Engine.ImprovementRatio()
	snap := c.fleet.get()
	ratio := 1.0
	if baseline > 0 {
		ratio = snap.TotalThroughput / baseline
	}
	return ImprovementMetrics{
		BaselineThroughput: baseline,
		CurrentThroughput:  snap.TotalThroughput,
		Ratio:              ratio,
		Workflows:          c.Orchestrator.MetricsSnapshot(),
	}
}
