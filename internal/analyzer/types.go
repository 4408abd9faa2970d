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

// Package analyzer is the Predictive Analyzer (§4.5): one consolidated
// Analyzer with explicit rule methods for risk scoring, anomaly
// detection, trend-based degradation, and fleet-level analysis. There
// are no per-model "predictor" types — the source's empty-bodied
// FailurePredictor/AnomalyDetector/PerformanceAnalyzer classes are
// consolidated here per the design's §9 resolution.
package analyzer

import "time"

// Kind is the sealed set of prediction variants.
type Kind string

const (
	KindNodeFailure             Kind = "NodeFailure"
	KindFleetFailure            Kind = "FleetFailure"
	KindPerformanceAnomaly      Kind = "PerformanceAnomaly"
	KindPerformanceDegradation  Kind = "PerformanceDegradation"
	KindFleetAnomaly            Kind = "FleetAnomaly"
)

// Severity is the fixed four-tier severity enum used by Predictions and
// Recommendations. Alerts carry their own severity tiers.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Recommendation pairs a priority with the canonical effector tag that
// the Healing Orchestrator maps to a strategy.
type Recommendation struct {
	Priority    Severity
	ActionLabel string
	Description string
	EffectorTag string
}

// Prediction is the Analyzer's sole output type.
type Prediction struct {
	ID                string
	Kind              Kind
	Severity          Severity
	EntityRef         string
	Score             float64
	Factors           map[string]float64
	PredictedTimeframe string
	Confidence        float64
	Recommendations   []Recommendation
	Timestamp         time.Time
}
