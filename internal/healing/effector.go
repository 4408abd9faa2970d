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
	"fmt"

	"fleetguard/internal/telemetry"
)

// StepContext is what an Effector sees for one workflow step: enough to
// act on the target entity without reaching back into the workflow or
// the orchestrator.
type StepContext struct {
	Workflow *Workflow
	Request  HealingRequest
	Step     string
}

// Effector is the opaque collaborator that performs the physical
// remediation for one workflow step. The core never executes physical
// remediations itself — it only drives the step sequence and records
// whatever Result or error the effector returns.
type Effector interface {
	Effect(ctx context.Context, sc StepContext) (result string, err error)
}

// SimulatedEffector is the default Effector: every step succeeds except
// the resource-sizing steps, which run a confidence-weighted scaling
// decision against recent telemetry and fail the step (not the process)
// when the decision isn't confident enough to act on.
type SimulatedEffector struct {
	Store *telemetry.Store
}

// NewSimulatedEffector builds an Effector backed by store for the
// analyze_usage / compute_plan sizing steps.
func NewSimulatedEffector(store *telemetry.Store) *SimulatedEffector {
	return &SimulatedEffector{Store: store}
}

func (e *SimulatedEffector) Effect(_ context.Context, sc StepContext) (string, error) {
	switch sc.Step {
	case "analyze_usage", "compute_plan", "audit_allocation":
		return e.sizingStep(sc)
	default:
		return fmt.Sprintf("%s: ok", sc.Step), nil
	}
}

func (e *SimulatedEffector) sizingStep(sc StepContext) (string, error) {
	samples := e.Store.Recent(sc.Request.EntityRef, defaultSizingLookback)
	if len(samples) == 0 {
		return "", fmt.Errorf("%s: no telemetry history for %s", sc.Step, sc.Request.EntityRef)
	}
	last := samples[len(samples)-1]

	cpuDecision, cpuErr := computeScalingDecision(samples, "cpu", last.CPUPct)
	if cpuErr == nil && cpuDecision.ShouldScale() {
		return fmt.Sprintf("%s: %s", sc.Step, cpuDecision.Reason), nil
	}
	memDecision, memErr := computeScalingDecision(samples, "memory", last.MemoryPct)
	if memErr == nil && memDecision.ShouldScale() {
		return fmt.Sprintf("%s: %s", sc.Step, memDecision.Reason), nil
	}
	if cpuErr != nil {
		return "", fmt.Errorf("%s: %w", sc.Step, cpuErr)
	}
	return fmt.Sprintf("%s: no scaling action warranted", sc.Step), nil
}
