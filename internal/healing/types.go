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

// Package healing is the Healing Orchestrator (§4.6): the strategy map,
// the cooldown/retry gate, and the workflow state machine that drives
// multi-step remediation through opaque effectors.
package healing

import (
	"time"

	"fleetguard/internal/analyzer"
)

// Action is the action_tag a Strategy resolves to.
type Action string

const (
	ActionRestartNode           Action = "restart_node"
	ActionRestartServices       Action = "restart_services"
	ActionScaleResources        Action = "scale_resources"
	ActionEmergencyScaling      Action = "emergency_scaling"
	ActionIsolateAffectedNodes  Action = "isolate_affected_nodes"
	ActionPerformanceTuning     Action = "performance_tuning"
	ActionOptimizeResources     Action = "optimize_resources"
)

// Status is the Workflow lifecycle enum.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusTimeout   Status = "Timeout"
	StatusCancelled Status = "Cancelled"
)

// StepStatus is the per-step lifecycle enum.
type StepStatus string

const (
	StepStarted   StepStatus = "Started"
	StepCompleted StepStatus = "Completed"
	StepFailed    StepStatus = "Failed"
)

// Step is one entry in a Workflow's ordered step sequence.
type Step struct {
	Name      string
	Status    StepStatus
	Timestamp time.Time
	Error     string
}

// Workflow is a bounded, timed, step-sequenced remediation attempt.
type Workflow struct {
	ID        string
	EntityRef string
	Action    Action
	Priority  analyzer.Severity
	Status    Status
	StartTime time.Time
	TimeoutMs int64
	Steps     []Step
	EndTime   time.Time
	Result    string
	Error     string
}

// Strategy is what the strategy map returns for a (prediction kind,
// severity) pair.
type Strategy struct {
	Action     Action
	Priority   analyzer.Severity
	TimeoutMs  int64
	PolicyName string
}

// HealingRequest is the payload published/consumed on healing.requests
// — structurally a Prediction, carried as its own type so the
// Orchestrator's inbound subscription doesn't import the analyzer
// package's full Prediction semantics, only the fields it needs.
type HealingRequest struct {
	Kind       analyzer.Kind
	Severity   analyzer.Severity
	EntityRef  string
	Score      float64
	Confidence float64
}

// stepSequences is the action -> ordered step names table (§4.6).
var stepSequences = map[Action][]string{
	ActionRestartNode:          {"validate", "drain_traffic", "restart", "verify_health", "restore_traffic"},
	ActionRestartServices:      {"identify_services", "restart_each", "verify_each"},
	ActionScaleResources:       {"analyze_usage", "compute_plan", "execute_scaling", "verify_scaling"},
	ActionEmergencyScaling:     {"assess_fleet", "execute_scaling", "verify_stability"},
	ActionIsolateAffectedNodes: {"identify_nodes", "isolate_each", "rebalance_fleet"},
	ActionPerformanceTuning:    {"analyze", "apply_optimizations", "verify_improvement"},
	ActionOptimizeResources:    {"audit_allocation", "apply_optimizations", "verify_optimization"},
}

// StepsFor returns the ordered step name sequence for action.
func StepsFor(action Action) []string {
	return stepSequences[action]
}
