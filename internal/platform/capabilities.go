// Copyright (C) 2025 right-sizer contributors
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

// Package platform discovers the one Kubernetes cluster capability the
// k8s sample source needs: whether metrics.k8s.io is being served, so
// the adapter can degrade to a SourceStall error instead of crashing
// against a cluster with no metrics-server installed.
package platform

import (
	"context"
	"fmt"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
)

// Capabilities reports cluster features discovered through the
// Kubernetes discovery API.
type Capabilities struct {
	// MetricsServerAvailable is true when the metrics.k8s.io API group is
	// discoverable, meaning NodeMetricses queries will work.
	MetricsServerAvailable bool
}

// Detector performs capability discovery using the Kubernetes discovery API.
type Detector struct {
	disc discovery.DiscoveryInterface
}

// NewDetector constructs a Detector from a client-go kubernetes.Interface.
func NewDetector(cs kubernetes.Interface) *Detector {
	return &Detector{disc: cs.Discovery()}
}

// Detect queries the apiserver's discovery API and reports whether
// metrics.k8s.io is currently being served. A hard error is returned
// only if discovery fails outright; a partial discovery failure
// (GroupDiscoveryFailedError) is treated as "group absent", not fatal —
// matching right-sizer's "degrade, don't crash" posture for an optional
// cluster feature.
func (d *Detector) Detect(_ context.Context) (Capabilities, error) {
	var caps Capabilities

	groups, err := d.disc.ServerGroups()
	if err != nil {
		if discovery.IsGroupDiscoveryFailedError(err) {
			return caps, nil
		}
		return caps, fmt.Errorf("discover server groups: %w", err)
	}

	for _, g := range groups.Groups {
		if g.Name == "metrics.k8s.io" {
			caps.MetricsServerAvailable = true
			break
		}
	}
	return caps, nil
}
