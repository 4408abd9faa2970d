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
	"time"

	"github.com/google/uuid"

	"fleetguard/internal/clock"
)

// runWorkflow drives wf through its step sequence to a terminal state.
// The wf.TimeoutMs deadline is checked before each step starts; a step
// that is already running is not interrupted when it passes. Each step is
// appended to wf.Steps as it starts, then updated in place on
// completion or failure. The caller owns wf until this returns; no
// other goroutine may touch it concurrently.
func runWorkflow(ctx context.Context, clk clock.Clock, eff Effector, req HealingRequest, wf *Workflow, onTerminal func(*Workflow)) {
	wf.Status = StatusRunning
	deadline := wf.StartTime.Add(time.Duration(wf.TimeoutMs) * time.Millisecond)

	steps := StepsFor(wf.Action)
	for _, name := range steps {
		if clk.Now().After(deadline) {
			finish(wf, clk, StatusTimeout, "", "workflow exceeded timeout_ms")
			onTerminal(wf)
			return
		}

		select {
		case <-ctx.Done():
			finish(wf, clk, StatusCancelled, "", "context cancelled")
			onTerminal(wf)
			return
		default:
		}

		step := Step{Name: name, Status: StepStarted, Timestamp: clk.Now()}
		wf.Steps = append(wf.Steps, step)

		result, err := eff.Effect(ctx, StepContext{Workflow: wf, Request: req, Step: name})

		idx := len(wf.Steps) - 1
		if err != nil {
			wf.Steps[idx].Status = StepFailed
			wf.Steps[idx].Error = err.Error()
			wf.Steps[idx].Timestamp = clk.Now()
			finish(wf, clk, StatusFailed, "", err.Error())
			onTerminal(wf)
			return
		}
		wf.Steps[idx].Status = StepCompleted
		wf.Steps[idx].Timestamp = clk.Now()
		wf.Result = result
	}

	finish(wf, clk, StatusCompleted, wf.Result, "")
	onTerminal(wf)
}

func finish(wf *Workflow, clk clock.Clock, status Status, result, errMsg string) {
	wf.Status = status
	wf.EndTime = clk.Now()
	if result != "" {
		wf.Result = result
	}
	wf.Error = errMsg
}

func newWorkflow(req HealingRequest, strategy Strategy, now time.Time) *Workflow {
	return &Workflow{
		ID:        uuid.NewString(),
		EntityRef: req.EntityRef,
		Action:    strategy.Action,
		Priority:  strategy.Priority,
		Status:    StatusPending,
		StartTime: now,
		TimeoutMs: strategy.TimeoutMs,
	}
}
