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

// Package snapshot persists the six JSON files the core writes under
// its data directory on shutdown / periodic snapshot (§6), and restores
// them on startup so a restarted process can resume without a durable
// database. Grounded on audit/audit.go's direct encoding/json-to-file
// idiom; right-sizer has no equivalent "snapshot the whole subsystem"
// feature, so this package generalizes that file-writing idiom rather
// than adapting a single source file.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"fleetguard/internal/analyzer"
	"fleetguard/internal/healing"
	"fleetguard/internal/telemetry"
)

const (
	fileMetricsHistory = "metrics-history.json"
	filePredictions    = "predictions.json"
	fileBaseline       = "baseline.json"
	fileHealingHistory = "healing-history.json"
	fileHealingMetrics = "healing-metrics.json"
	fileSessionSummary = "session-summary.json"
)

// MetricsHistory is the metrics-history.json payload: the Sample ring
// for every known node.
type MetricsHistory struct {
	Samples map[string][]telemetry.Sample `json:"samples"`
}

// Predictions is the predictions.json payload.
type Predictions struct {
	Predictions []analyzer.Prediction `json:"predictions"`
}

// Baselines is the baseline.json payload: established per-entity
// baselines plus the single fleet-wide throughput baseline used for the
// improvement ratio (§9 open question: persisted baseline wins on
// restart).
type Baselines struct {
	Nodes                   []telemetry.Baseline `json:"nodes"`
	FleetBaselineThroughput float64              `json:"fleet_baseline_throughput"`
	FleetBaselineCaptured   bool                 `json:"fleet_baseline_captured"`
}

// HealingHistory is the healing-history.json payload.
type HealingHistory struct {
	Workflows []healing.Workflow `json:"workflows"`
}

// HealingMetrics is the healing-metrics.json payload.
type HealingMetrics struct {
	Total             int64   `json:"total"`
	Successful        int64   `json:"successful"`
	Failed            int64   `json:"failed"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// SessionSummary is the session-summary.json payload.
type SessionSummary struct {
	StartedAt            time.Time `json:"started_at"`
	SavedAt              time.Time `json:"saved_at"`
	UptimeMs             int64     `json:"uptime_ms"`
	TotalPredictions     int       `json:"total_predictions"`
	TotalWorkflows       int64     `json:"total_workflows"`
	LastImprovementRatio float64   `json:"last_improvement_ratio"`
}

// Sources bundles everything Save reads from and Load restores into.
// The coordinator owns all of these; snapshot only serializes them.
type Sources struct {
	Store        *telemetry.Store
	Baselines    *telemetry.BaselineLearner
	Analyzer     *analyzer.Analyzer
	Orchestrator *healing.Orchestrator
}

// Save writes all six snapshot files under dir, creating it if needed.
// A failure partway through still leaves the files written so far; the
// caller logs snapshot failures as warnings and carries on (non-fatal).
func Save(dir string, src Sources, startedAt time.Time, improvementBaseline float64, improvementCaptured bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	history := MetricsHistory{Samples: make(map[string][]telemetry.Sample)}
	for _, id := range src.Store.NodeIDs() {
		history.Samples[id] = src.Store.All(id)
	}
	if err := writeJSON(filepath.Join(dir, fileMetricsHistory), history); err != nil {
		return err
	}

	predictions := Predictions{Predictions: src.Analyzer.All()}
	if err := writeJSON(filepath.Join(dir, filePredictions), predictions); err != nil {
		return err
	}

	baselines := Baselines{
		Nodes:                   src.Baselines.All(),
		FleetBaselineThroughput: improvementBaseline,
		FleetBaselineCaptured:   improvementCaptured,
	}
	if err := writeJSON(filepath.Join(dir, fileBaseline), baselines); err != nil {
		return err
	}

	workflows := src.Orchestrator.History(0)
	if err := writeJSON(filepath.Join(dir, fileHealingHistory), HealingHistory{Workflows: workflows}); err != nil {
		return err
	}

	m := src.Orchestrator.MetricsSnapshot()
	hm := HealingMetrics{Total: m.Total, Successful: m.Successful, Failed: m.Failed, AverageDurationMs: m.AverageDurationMs()}
	if err := writeJSON(filepath.Join(dir, fileHealingMetrics), hm); err != nil {
		return err
	}

	now := time.Now()
	summary := SessionSummary{
		StartedAt:            startedAt,
		SavedAt:              now,
		UptimeMs:             now.Sub(startedAt).Milliseconds(),
		TotalPredictions:     len(predictions.Predictions),
		TotalWorkflows:       m.Total,
		LastImprovementRatio: improvementRatio(improvementBaseline, history),
	}
	return writeJSON(filepath.Join(dir, fileSessionSummary), summary)
}

func improvementRatio(baseline float64, history MetricsHistory) float64 {
	if baseline <= 0 {
		return 1.0
	}
	var current float64
	for _, samples := range history.Samples {
		if len(samples) == 0 {
			continue
		}
		current += samples[len(samples)-1].ThroughputOpsS
	}
	return current / baseline
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Loaded is everything restorable from disk. Any field left zero means
// the corresponding file was absent, not an error — a first run has no
// prior snapshot.
type Loaded struct {
	History     MetricsHistory
	Predictions Predictions
	Baselines   Baselines
	Healing     HealingHistory
	HealingMet  HealingMetrics
	Summary     SessionSummary
}

// Load reads every snapshot file present under dir. A missing directory
// or missing individual file is not an error; Loaded's corresponding
// field is left at its zero value.
func Load(dir string) (Loaded, error) {
	var out Loaded
	if err := readJSON(filepath.Join(dir, fileMetricsHistory), &out.History); err != nil {
		return out, err
	}
	if err := readJSON(filepath.Join(dir, filePredictions), &out.Predictions); err != nil {
		return out, err
	}
	if err := readJSON(filepath.Join(dir, fileBaseline), &out.Baselines); err != nil {
		return out, err
	}
	if err := readJSON(filepath.Join(dir, fileHealingHistory), &out.Healing); err != nil {
		return out, err
	}
	if err := readJSON(filepath.Join(dir, fileHealingMetrics), &out.HealingMet); err != nil {
		return out, err
	}
	if err := readJSON(filepath.Join(dir, fileSessionSummary), &out.Summary); err != nil {
		return out, err
	}
	return out, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// Apply restores Loaded state into the live components, seeding each
// node's Sample ring, baselines, predictions and workflow history.
func Apply(loaded Loaded, dst Sources) {
	for nodeID, samples := range loaded.History.Samples {
		dst.Store.Seed(nodeID, samples)
	}
	for _, bl := range loaded.Baselines.Nodes {
		dst.Baselines.Seed(bl)
	}
	if len(loaded.Predictions.Predictions) > 0 {
		dst.Analyzer.Seed(loaded.Predictions.Predictions)
	}
	if len(loaded.Healing.Workflows) > 0 {
		dst.Orchestrator.SeedHistory(loaded.Healing.Workflows)
	}
}
