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

package healing

import (
	"context"
	"sync"
	"time"

	"fleetguard/internal/analyzer"
	"fleetguard/internal/bus"
	"fleetguard/internal/clock"
	"fleetguard/internal/flog"
)

const (
	// TopicHealingRequests carries both internally-derived predictions
	// and externally-submitted requests; both are treated identically.
	TopicHealingRequests = "healing.requests"
	// TopicHealingWorkflows carries workflow lifecycle events.
	TopicHealingWorkflows = "healing.workflows"
	// TopicPolicyBlocked fires when the cooldown/retry gate refuses a
	// request; refusal is reported, not treated as an error.
	TopicPolicyBlocked = "policy.blocked"

	historyCapacity = 1000
)

// Metrics tallies workflow outcomes for the query surface and the
// healing-metrics.json snapshot.
type Metrics struct {
	Total              int64
	Successful         int64
	Failed             int64
	runningDurationSum time.Duration
	runningCount       int64
}

// AverageDurationMs is the running average workflow duration across
// every terminal transition observed so far.
func (m Metrics) AverageDurationMs() float64 {
	if m.runningCount == 0 {
		return 0
	}
	return float64(m.runningDurationSum.Milliseconds()) / float64(m.runningCount)
}

// PolicyBlockedEvent is published when the cooldown/retry gate refuses
// a request.
type PolicyBlockedEvent struct {
	EntityRef string
	Action    Action
	Reason    string
	Timestamp time.Time
}

// Orchestrator is the Healing Orchestrator (§4.6): it consumes
// predictions and explicit healing requests, resolves each to a
// Strategy, gates execution through the cooldown/retry table, and
// drives accepted requests through a Workflow state machine. At most
// one Workflow is active per (entity, action) at any instant.
type Orchestrator struct {
	bus      *bus.Bus
	gate     *CooldownGate
	effector Effector
	clk      clock.Clock
	log      *flog.Logger

	mu      sync.Mutex
	active  map[string]*Workflow
	history []*Workflow
	metrics Metrics

	unsubPredictions bus.Unsubscribe
	unsubRequests    bus.Unsubscribe

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs an Orchestrator. log may be nil.
func New(b *bus.Bus, policies map[Action]CooldownPolicy, eff Effector, clk clock.Clock, log *flog.Logger) *Orchestrator {
	if log == nil {
		log = flog.New("info", "healing")
	}
	return &Orchestrator{
		bus:      b,
		gate:     NewCooldownGate(policies),
		effector: eff,
		clk:      clk,
		log:      log,
		active:   make(map[string]*Workflow),
	}
}

// Start subscribes to predictions and inbound healing requests. Both
// feed the same acceptance path: a prediction is simply converted to a
// HealingRequest before being evaluated.
func (o *Orchestrator) Start() {
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	o.unsubPredictions = o.bus.Subscribe(analyzer.TopicPredictions, "healing", o.onPrediction)
	o.unsubRequests = o.bus.Subscribe(TopicHealingRequests, "healing", o.onRequest)
}

// Stop cancels every active workflow, flushing each to history as
// Cancelled, and unsubscribes from the bus. It waits for in-flight
// workflow goroutines to observe the cancellation and return.
func (o *Orchestrator) Stop() {
	if o.unsubPredictions != nil {
		o.unsubPredictions()
	}
	if o.unsubRequests != nil {
		o.unsubRequests()
	}
	if o.runCancel != nil {
		o.runCancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) onPrediction(msg bus.Message) {
	p, ok := msg.Payload.(analyzer.Prediction)
	if !ok {
		return
	}
	o.accept(HealingRequest{
		Kind:       p.Kind,
		Severity:   p.Severity,
		EntityRef:  p.EntityRef,
		Score:      p.Score,
		Confidence: p.Confidence,
	})
}

func (o *Orchestrator) onRequest(msg bus.Message) {
	req, ok := msg.Payload.(HealingRequest)
	if !ok {
		return
	}
	o.accept(req)
}

// accept resolves req to a Strategy, applies the cooldown/retry gate
// and the at-most-one-active-workflow-per-(entity,action) invariant,
// and — if everything clears — starts a workflow goroutine.
func (o *Orchestrator) accept(req HealingRequest) {
	strategy, ok := Lookup(req.Kind, req.Severity, req.Confidence)
	if !ok {
		return
	}

	key := gateKey(req.EntityRef, strategy.Action)

	o.mu.Lock()
	if _, running := o.active[key]; running {
		o.mu.Unlock()
		return
	}
	if !o.gate.CanExecute(req.EntityRef, strategy.Action) {
		o.mu.Unlock()
		o.publishBlocked(req.EntityRef, strategy.Action, "cooldown or retry limit in effect")
		return
	}

	wf := newWorkflow(req, strategy, o.clk.Now())
	o.active[key] = wf
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		runWorkflow(o.runCtx, o.clk, o.effector, req, wf, func(done *Workflow) {
			o.onTerminal(key, req.EntityRef, strategy.Action, done)
		})
	}()
}

func (o *Orchestrator) publishBlocked(entity string, action Action, reason string) {
	o.log.Warn("policy blocked: %s/%s: %s", entity, action, reason)
	o.bus.Publish(TopicPolicyBlocked, PolicyBlockedEvent{
		EntityRef: entity,
		Action:    action,
		Reason:    reason,
		Timestamp: o.clk.Now(),
	})
}

func (o *Orchestrator) onTerminal(key, entity string, action Action, wf *Workflow) {
	switch wf.Status {
	case StatusCompleted:
		o.gate.RecordSuccess(entity, action)
	case StatusFailed, StatusTimeout:
		o.gate.RecordFailure(entity, action)
	}

	o.mu.Lock()
	delete(o.active, key)
	o.history = append(o.history, wf)
	if len(o.history) > historyCapacity {
		o.history = o.history[len(o.history)-historyCapacity:]
	}
	o.metrics.Total++
	if wf.Status == StatusCompleted {
		o.metrics.Successful++
	} else if wf.Status == StatusFailed || wf.Status == StatusTimeout {
		o.metrics.Failed++
	}
	if !wf.EndTime.IsZero() {
		o.metrics.runningDurationSum += wf.EndTime.Sub(wf.StartTime)
		o.metrics.runningCount++
	}
	o.mu.Unlock()

	o.log.Info("workflow %s terminal: %s/%s -> %s", wf.ID, entity, action, wf.Status)
	o.bus.Publish(TopicHealingWorkflows, *wf)
}

// Active returns a snapshot of currently running workflows.
func (o *Orchestrator) Active() []Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Workflow, 0, len(o.active))
	for _, wf := range o.active {
		out = append(out, *wf)
	}
	return out
}

// History returns up to count most recent terminal workflows, newest
// last.
func (o *Orchestrator) History(count int) []Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	if count <= 0 || count > len(o.history) {
		count = len(o.history)
	}
	out := make([]Workflow, count)
	for i, wf := range o.history[len(o.history)-count:] {
		out[i] = *wf
	}
	return out
}

// MetricsSnapshot returns the current counters.
func (o *Orchestrator) MetricsSnapshot() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// SeedHistory restores workflow history from a persisted snapshot on
// startup.
func (o *Orchestrator) SeedHistory(workflows []Workflow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range workflows {
		wf := workflows[i]
		o.history = append(o.history, &wf)
	}
	if len(o.history) > historyCapacity {
		o.history = o.history[len(o.history)-historyCapacity:]
	}
}
