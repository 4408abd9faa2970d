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

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetguard/internal/bus"
	"fleetguard/internal/telemetry"
)

// TopicPredictions is where every Prediction is published.
const TopicPredictions = "predictions"

const predictionRingCapacity = 1000

// Config bundles the analyzer's configurable thresholds (§6
// models.failure_prediction / models.anomaly / models.degradation).
type Config struct {
	RiskThreshold       float64
	TrendWindow         int
	DegradationThreshold float64
	FleetThreshold      float64
}

// DefaultConfig matches the §4.5 literal thresholds.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:        0.7,
		TrendWindow:          defaultTrendWindow,
		DegradationThreshold: defaultDegradationThresholdPct,
		FleetThreshold:       0.7,
	}
}

// Analyzer is the single consolidated Predictive Analyzer (§4.5). It
// subscribes to telemetry updates, evaluates risk/anomaly/degradation
// per node and fleet-level signals on fleet updates, and publishes
// every emitted Prediction on the bus while retaining the last 1000 in
// memory.
type Analyzer struct {
	store  *telemetry.Store
	bus    *bus.Bus
	cfg    Config
	log    *zap.Logger

	mu          sync.Mutex
	predictions []Prediction
	prevAvail   float64
	haveAvail   bool

	unsubNode  bus.Unsubscribe
	unsubFleet bus.Unsubscribe
}

// New constructs an Analyzer. log may be nil, in which case a no-op
// logger is used.
func New(store *telemetry.Store, b *bus.Bus, cfg Config, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{store: store, bus: b, cfg: cfg, log: log}
}

// Start subscribes to telemetry.node and telemetry.fleet.
func (a *Analyzer) Start() {
	a.unsubNode = a.bus.Subscribe(telemetry.TopicNodeUpdate, "analyzer", a.onNodeUpdate)
	a.unsubFleet = a.bus.Subscribe(telemetry.TopicFleetUpdate, "analyzer", a.onFleetUpdate)
}

// Stop unsubscribes the analyzer from the bus.
func (a *Analyzer) Stop() {
	if a.unsubNode != nil {
		a.unsubNode()
	}
	if a.unsubFleet != nil {
		a.unsubFleet()
	}
}

func (a *Analyzer) onNodeUpdate(msg bus.Message) {
	update := msg.Payload.(telemetry.NodeUpdate)
	nodeID := update.Sample.NodeID

	recent := a.store.Recent(nodeID, minSamplesForRisk)
	if score, factors, ok := scoreNodeRisk(recent); ok && score > a.cfg.RiskThreshold {
		confidence := clamp01(float64(len(recent)) / float64(minSamplesForRisk))
		a.emit(Prediction{
			Kind:               KindNodeFailure,
			Severity:           SeverityForScore(score),
			EntityRef:          nodeID,
			Score:              score,
			Factors:            factors,
			PredictedTimeframe: TimeframeForScore(score),
			Confidence:         confidence,
			Recommendations:    recommendationsForFactors(update.Sample),
		})
	}

	if dev, severity, fire := detectAnomaly(update.Sample, update.Baseline); fire {
		a.emit(Prediction{
			Kind:               KindPerformanceAnomaly,
			Severity:           severity,
			EntityRef:          nodeID,
			Score:              dev,
			Factors:            map[string]float64{"deviation": dev},
			PredictedTimeframe: TimeframeForScore(dev),
			Confidence:         clamp01(dev),
		})
	}

	window := a.store.Recent(nodeID, a.cfg.TrendWindow)
	if scorePct, fire := detectDegradation(window, a.cfg.DegradationThreshold); fire {
		a.emit(Prediction{
			Kind:               KindPerformanceDegradation,
			Severity:           severityForDegradation(scorePct),
			EntityRef:          nodeID,
			Score:              scorePct / 100,
			Factors:            map[string]float64{"degradation_pct": scorePct},
			PredictedTimeframe: TimeframeForScore(scorePct / 100),
			Confidence:         clamp01(scorePct / 100),
		})
	}
}

func severityForDegradation(scorePct float64) Severity {
	return SeverityForScore(scorePct / 100)
}

func (a *Analyzer) onFleetUpdate(msg bus.Message) {
	snap := msg.Payload.(telemetry.FleetSnapshot)
	if snap.Total == 0 {
		return
	}

	a.mu.Lock()
	prevAvail := a.prevAvail
	haveAvail := a.haveAvail
	a.prevAvail = snap.AvailabilityPct
	a.haveAvail = true
	a.mu.Unlock()
	if !haveAvail {
		prevAvail = snap.AvailabilityPct
	}

	latest := a.store.AllLatest()
	var nodes []telemetry.Sample
	for _, id := range snap.NodeIDs {
		if s, ok := latest[id]; ok {
			nodes = append(nodes, s)
		}
	}

	score, factors := scoreFleet(prevAvail, snap.AvailabilityPct, nodes)
	if score > a.cfg.FleetThreshold {
		a.emit(Prediction{
			Kind:               KindFleetFailure,
			Severity:           SeverityForScore(score),
			EntityRef:          "fleet",
			Score:              score,
			Factors:            factors,
			PredictedTimeframe: TimeframeForScore(score),
			Confidence:         clamp01(score),
		})
	}
}

func (a *Analyzer) emit(p Prediction) {
	p.ID = uuid.NewString()
	p.Timestamp = time.Now()

	a.mu.Lock()
	a.predictions = append(a.predictions, p)
	if len(a.predictions) > predictionRingCapacity {
		a.predictions = a.predictions[len(a.predictions)-predictionRingCapacity:]
	}
	a.mu.Unlock()

	a.log.Debug("prediction emitted", zap.String("kind", string(p.Kind)), zap.String("entity", p.EntityRef), zap.Float64("score", p.Score))
	a.bus.Publish(TopicPredictions, p)
}

// Recent returns up to count most recent predictions, newest last.
func (a *Analyzer) Recent(count int) []Prediction {
	a.mu.Lock()
	defer a.mu.Unlock()
	if count <= 0 || count > len(a.predictions) {
		count = len(a.predictions)
	}
	out := make([]Prediction, count)
	copy(out, a.predictions[len(a.predictions)-count:])
	return out
}

// All returns every retained prediction, used for snapshotting.
func (a *Analyzer) All() []Prediction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Prediction, len(a.predictions))
	copy(out, a.predictions)
	return out
}

// Seed restores predictions from a persisted snapshot on startup.
func (a *Analyzer) Seed(predictions []Prediction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.predictions = append([]Prediction(nil), predictions...)
}
