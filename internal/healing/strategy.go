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

import "fleetguard/internal/analyzer"

const confidenceFloor = 0.6

type strategyKey struct {
	kind     analyzer.Kind
	severity analyzer.Severity
}

// strategyMap is the static table keyed on (prediction.kind, severity),
// reproduced verbatim from the §4.6 representative rows. Kind/severity
// combinations not listed here have no strategy.
var strategyMap = map[strategyKey]Strategy{
	{analyzer.KindNodeFailure, analyzer.SeverityCritical}: {ActionRestartNode, analyzer.SeverityCritical, 120_000, "node_restart"},
	{analyzer.KindNodeFailure, analyzer.SeverityHigh}:     {ActionRestartServices, analyzer.SeverityHigh, 30_000, "service_restart"},
	{analyzer.KindNodeFailure, analyzer.SeverityMedium}:   {ActionScaleResources, analyzer.SeverityMedium, 300_000, "resource_scaling"},

	{analyzer.KindFleetFailure, analyzer.SeverityCritical}: {ActionEmergencyScaling, analyzer.SeverityCritical, 300_000, "resource_scaling"},
	{analyzer.KindFleetFailure, analyzer.SeverityHigh}:     {ActionIsolateAffectedNodes, analyzer.SeverityHigh, 60_000, "node_isolation"},

	{analyzer.KindPerformanceAnomaly, analyzer.SeverityHigh}: {ActionRestartServices, analyzer.SeverityHigh, 30_000, "service_restart"},

	{analyzer.KindPerformanceDegradation, analyzer.SeverityHigh}: {ActionScaleResources, analyzer.SeverityHigh, 300_000, "resource_scaling"},
}

// Lookup returns the Strategy for (kind, severity) and confidence, or
// ok=false if no strategy applies — either because the table has no
// entry, or because confidence is at or below the 0.6 floor (strict >
// is required, matching the risk-score boundary rule).
func Lookup(kind analyzer.Kind, severity analyzer.Severity, confidence float64) (Strategy, bool) {
	if confidence <= confidenceFloor {
		return Strategy{}, false
	}
	s, ok := strategyMap[strategyKey{kind, severity}]
	return s, ok
}
