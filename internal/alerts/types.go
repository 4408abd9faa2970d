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

// Package alerts is the Alert Manager (§4.7): a metric->threshold
// table, severity-graded alert firing, and the ack/resolve/escalate
// lifecycle. Grounded on right-sizer's alerts/manager.go and
// alerts/detector.go, generalized from a single zScore-per-pod table to
// the fleetguard metric-kind threshold table §6 describes.
package alerts

import "time"

// Kind names the metric a threshold row evaluates.
type Kind string

const (
	KindLatency      Kind = "latency"
	KindCPU          Kind = "cpu"
	KindMemory       Kind = "memory"
	KindDisk         Kind = "disk"
	KindErrorRate    Kind = "error_rate"
	KindAvailability Kind = "availability"
	KindCost         Kind = "cost"
)

// Severity is the four-tier alert severity enum (distinct from the
// analyzer's Prediction severity set, per §3's Alert type).
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityError    Severity = "Error"
	SeverityCritical Severity = "Critical"
)

// Acknowledgment is one entry in an Alert's ack history.
type Acknowledgment struct {
	User      string
	Timestamp time.Time
	Note      string
}

// Alert is a severity-graded, lifecycle-managed event (§3).
type Alert struct {
	ID              string
	Kind            Kind
	Severity        Severity
	Title           string
	Message         string
	EntityRef       string
	Value           float64
	Threshold       float64
	Timestamp       time.Time
	Resolved        bool
	Acknowledgments []Acknowledgment
}

// ThresholdPair is a warning/critical pair for one metric kind.
type ThresholdPair struct {
	Warning  float64
	Critical float64
}

// higherIsWorse reports whether crossing the threshold upward is the
// unhealthy direction for kind. Availability is the one metric where
// lower is worse, so its comparison inverts.
func (k Kind) higherIsWorse() bool {
	return k != KindAvailability
}
