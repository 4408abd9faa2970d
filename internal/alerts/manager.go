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

package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetguard/internal/bus"
	"fleetguard/internal/clock"
	"fleetguard/internal/telemetry"
)

// Topic names published by the Alert Manager.
const (
	TopicAlerts = "alerts"
)

// EventKind distinguishes the lifecycle events carried on TopicAlerts.
type EventKind string

const (
	EventFired      EventKind = "fired"
	EventAcked      EventKind = "acknowledged"
	EventResolved   EventKind = "resolved"
	EventEscalated  EventKind = "escalated"
)

// Event is the payload published on TopicAlerts for every lifecycle
// transition.
type Event struct {
	EventKind EventKind
	Alert     Alert
}

// Thresholds is the metric->threshold table (§6
// thresholds.{kind}.{warning,critical}).
type Thresholds map[Kind]ThresholdPair

const defaultDedupWindow = 60 * time.Second
const defaultEscalationTimeout = 15 * time.Minute
const alertRingCapacity = 1000

// Manager is the Alert Manager (§4.7): it evaluates the threshold table
// against telemetry updates, fires deduplicated Alerts, and drives the
// ack/resolve/escalate lifecycle. Grounded on right-sizer's
// alerts/manager.go (Create/Get/List/Resolve shape, ID generation,
// max-age bookkeeping) and alerts/detector.go (threshold evaluation
// loop), generalized from right-sizer's single zScore-per-pod table to
// fleetguard's per-kind warning/critical table.
type Manager struct {
	thresholds Thresholds
	dedupWindow time.Duration
	escalationTimeout time.Duration

	bus *bus.Bus
	clk clock.Clock
	log *zap.Logger

	mu      sync.Mutex
	active  map[string]*Alert   // id -> alert (unresolved and resolved, oldest pruned past alertRingCapacity)
	order   []string            // retained order for the bounded ring
	lastFired map[string]time.Time // dedup key -> last fire time

	unsubNode  bus.Unsubscribe
	unsubFleet bus.Unsubscribe

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithDedupWindow(d time.Duration) Option {
	return func(m *Manager) { m.dedupWindow = d }
}

func WithEscalationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.escalationTimeout = d }
}

// New constructs an Alert Manager. log may be nil.
func New(thresholds Thresholds, b *bus.Bus, clk clock.Clock, log *zap.Logger, opts ...Option) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		thresholds:        thresholds,
		dedupWindow:       defaultDedupWindow,
		escalationTimeout: defaultEscalationTimeout,
		bus:               b,
		clk:               clk,
		log:               log,
		active:            make(map[string]*Alert),
		lastFired:         make(map[string]time.Time),
		stop:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to telemetry updates and begins the escalation
// sweep on the watchdog cadence.
func (m *Manager) Start(ctx context.Context) {
	m.unsubNode = m.bus.Subscribe(telemetry.TopicNodeUpdate, "alerts", m.onNodeUpdate)
	m.unsubFleet = m.bus.Subscribe(telemetry.TopicFleetUpdate, "alerts", m.onFleetUpdate)

	ticker := m.clk.NewTicker(clock.WatchdogCadence)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C():
				m.sweepEscalations()
			}
		}
	}()
}

// Stop unsubscribes from the bus and halts the escalation sweep.
func (m *Manager) Stop() {
	if m.unsubNode != nil {
		m.unsubNode()
	}
	if m.unsubFleet != nil {
		m.unsubFleet()
	}
	close(m.stop)
	m.wg.Wait()
}

func (m *Manager) onNodeUpdate(msg bus.Message) {
	u, ok := msg.Payload.(telemetry.NodeUpdate)
	if !ok {
		return
	}
	s := u.Sample
	m.evaluate(s.NodeID, KindLatency, s.LatencyMs)
	m.evaluate(s.NodeID, KindCPU, s.CPUPct)
	m.evaluate(s.NodeID, KindMemory, s.MemoryPct)
	m.evaluate(s.NodeID, KindDisk, s.DiskPct)
	m.evaluate(s.NodeID, KindErrorRate, s.ErrorRatePct)
}

func (m *Manager) onFleetUpdate(msg bus.Message) {
	snap, ok := msg.Payload.(telemetry.FleetSnapshot)
	if !ok || snap.Total == 0 {
		return
	}
	m.evaluate("fleet", KindAvailability, snap.AvailabilityPct)
	m.evaluate("fleet", KindCost, snap.HourlyCost)
}

// evaluate checks value against kind's threshold pair and fires an
// Alert at the highest crossed tier, if any.
func (m *Manager) evaluate(entity string, kind Kind, value float64) {
	pair, ok := m.thresholds[kind]
	if !ok {
		return
	}

	var severity Severity
	var threshold float64
	switch {
	case kind.higherIsWorse():
		switch {
		case pair.Critical > 0 && value > pair.Critical:
			severity, threshold = SeverityCritical, pair.Critical
		case pair.Warning > 0 && value > pair.Warning:
			severity, threshold = SeverityWarning, pair.Warning
		default:
			return
		}
	default:
		switch {
		case value < pair.Critical:
			severity, threshold = SeverityCritical, pair.Critical
		case value < pair.Warning:
			severity, threshold = SeverityWarning, pair.Warning
		default:
			return
		}
	}

	m.Fire(Alert{
		Kind:      kind,
		Severity:  severity,
		EntityRef: entity,
		Title:     fmt.Sprintf("%s threshold crossed", kind),
		Message:   fmt.Sprintf("%s=%.2f crossed %s threshold %.2f for %s", kind, value, severity, threshold, entity),
		Value:     value,
		Threshold: threshold,
	})
}

func dedupKey(kind Kind, entity string, severity Severity) string {
	return string(kind) + "/" + entity + "/" + string(severity)
}

// Fire instantiates and publishes an Alert, deduplicated by (kind,
// entity, severity) within the configured dedup window (§4.7).
func (m *Manager) Fire(a Alert) *Alert {
	key := dedupKey(a.Kind, a.EntityRef, a.Severity)

	m.mu.Lock()
	now := m.clk.Now()
	if last, ok := m.lastFired[key]; ok && now.Sub(last) < m.dedupWindow {
		m.mu.Unlock()
		return nil
	}
	m.lastFired[key] = now

	a.ID = uuid.NewString()
	a.Timestamp = now
	stored := a
	m.active[a.ID] = &stored
	m.order = append(m.order, a.ID)
	if len(m.order) > alertRingCapacity {
		evicted := m.order[0]
		m.order = m.order[1:]
		delete(m.active, evicted)
	}
	m.mu.Unlock()

	m.log.Info("alert fired", zap.String("id", a.ID), zap.String("kind", string(a.Kind)), zap.String("severity", string(a.Severity)), zap.String("entity", a.EntityRef))
	m.bus.Publish(TopicAlerts, Event{EventKind: EventFired, Alert: stored})
	return &stored
}

// Acknowledge appends an acknowledgment to the alert. It does not
// resolve the alert.
func (m *Manager) Acknowledge(id, user, note string) error {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("alert not found: %s", id)
	}
	a.Acknowledgments = append(a.Acknowledgments, Acknowledgment{User: user, Timestamp: m.clk.Now(), Note: note})
	stored := *a
	m.mu.Unlock()

	m.bus.Publish(TopicAlerts, Event{EventKind: EventAcked, Alert: stored})
	return nil
}

// Resolve sets resolved=true and emits a resolution event. Idempotent:
// resolving an already-resolved alert is a no-op with no second event.
func (m *Manager) Resolve(id string) error {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("alert not found: %s", id)
	}
	if a.Resolved {
		m.mu.Unlock()
		return nil
	}
	a.Resolved = true
	stored := *a
	m.mu.Unlock()

	m.bus.Publish(TopicAlerts, Event{EventKind: EventResolved, Alert: stored})
	return nil
}

// Escalate raises the alert's severity by one tier and re-fires it.
func (m *Manager) Escalate(id string) error {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("alert not found: %s", id)
	}
	if a.Resolved {
		m.mu.Unlock()
		return nil
	}
	a.Severity = nextTier(a.Severity)
	stored := *a
	m.mu.Unlock()

	m.log.Warn("alert escalated", zap.String("id", id), zap.String("severity", string(stored.Severity)))
	m.bus.Publish(TopicAlerts, Event{EventKind: EventEscalated, Alert: stored})
	return nil
}

func nextTier(s Severity) Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarning
	case SeverityWarning:
		return SeverityError
	case SeverityError, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// sweepEscalations automatically escalates any unresolved, unacknowledged
// alert that has been open longer than escalationTimeout (§4.7).
func (m *Manager) sweepEscalations() {
	now := m.clk.Now()
	m.mu.Lock()
	var toEscalate []string
	for id, a := range m.active {
		if a.Resolved || len(a.Acknowledgments) > 0 {
			continue
		}
		if now.Sub(a.Timestamp) > m.escalationTimeout {
			toEscalate = append(toEscalate, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toEscalate {
		_ = m.Escalate(id)
		m.mu.Lock()
		if a, ok := m.active[id]; ok {
			a.Timestamp = now
		}
		m.mu.Unlock()
	}
}

// Get returns a copy of the alert with id, if it exists.
func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// Filter selects alerts for the query surface.
type Filter struct {
	Kind        Kind
	EntityRef   string
	Severity    Severity
	OnlyActive  bool
}

// Recent returns alerts matching filter, newest first.
func (m *Manager) Recent(f Filter) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.active[m.order[i]]
		if a == nil {
			continue
		}
		if f.OnlyActive && a.Resolved {
			continue
		}
		if f.Kind != "" && a.Kind != f.Kind {
			continue
		}
		if f.EntityRef != "" && a.EntityRef != f.EntityRef {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// All returns every retained alert, for snapshotting.
func (m *Manager) All() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.order))
	for _, id := range m.order {
		if a := m.active[id]; a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// Seed restores alerts from a persisted snapshot on startup.
func (m *Manager) Seed(alerts []Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range alerts {
		a := alerts[i]
		m.active[a.ID] = &a
		m.order = append(m.order, a.ID)
	}
	if len(m.order) > alertRingCapacity {
		overflow := len(m.order) - alertRingCapacity
		for _, id := range m.order[:overflow] {
			delete(m.active, id)
		}
		m.order = m.order[overflow:]
	}
}
