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

// Package k8s is the production SampleSource adapter (§4.3): it lists
// cluster Nodes and queries metrics.k8s.io for cpu/memory usage,
// translating the result into telemetry.Sample records. Grounded on
// metrics/metrics_server.go's metricsclient.NewForConfig /
// MetricsV1beta1().PodMetricses pattern, generalized from per-pod to
// per-node sampling since fleetguard's NodeId is the cluster Node, not
// an individual pod.
package k8s

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"fleetguard/internal/fgerrors"
	"fleetguard/internal/platform"
	"fleetguard/internal/telemetry"
)

const capsRefreshInterval = 60 * time.Second

// Adapter is a telemetry.SampleSource backed by a live cluster: Node
// listing for availability/uptime and a metrics.k8s.io NodeMetricses
// query for cpu/memory. It degrades gracefully (SourceStall, not a
// fatal error) if the metrics-server capability is unavailable.
type Adapter struct {
	clientset     kubernetes.Interface
	metricsClient metricsclient.Interface
	caps          *platform.Detector

	lastCapsCheck    time.Time
	metricsAvailable bool
}

// New constructs an Adapter from a client-go Interface and a
// metrics.k8s.io client. metricsClient may be nil; in that case every
// Collect returns a SourceStall error instead of crashing, matching
// right-sizer's "return a provider that will fail gracefully" pattern in
// metrics/metrics_server.go.
func New(clientset kubernetes.Interface, metricsClient metricsclient.Interface) *Adapter {
	return &Adapter{
		clientset:     clientset,
		metricsClient: metricsClient,
		caps:          platform.NewDetector(clientset),
	}
}

// Collect implements telemetry.SampleSource.
func (a *Adapter) Collect(ctx context.Context) ([]telemetry.Sample, error) {
	if a.metricsClient == nil {
		return nil, fgerrors.SourceStall("source.k8s.collect", "metrics client not available")
	}
	if !a.metricsServerAvailable(ctx) {
		return nil, fgerrors.SourceStall("source.k8s.collect", "metrics.k8s.io not discoverable on this cluster")
	}

	nodeList, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fgerrors.TransientIO("source.k8s.listNodes", err)
	}

	nodeMetrics, err := a.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fgerrors.TransientIO("source.k8s.listNodeMetrics", err)
	}
	usageByName := make(map[string]metricsv1beta1.NodeMetrics, len(nodeMetrics.Items))
	for _, m := range nodeMetrics.Items {
		usageByName[m.Name] = m
	}

	now := time.Now()
	samples := make([]telemetry.Sample, 0, len(nodeList.Items))
	for _, node := range nodeList.Items {
		samples = append(samples, translateNode(node, usageByName[node.Name], now))
	}
	return samples, nil
}

// metricsServerAvailable caches the discovery check on a slow cadence;
// calling platform.Detector.Detect on every 1s tick would hammer the
// discovery API for a fact that changes on cluster-upgrade timescales.
func (a *Adapter) metricsServerAvailable(ctx context.Context) bool {
	if time.Since(a.lastCapsCheck) < capsRefreshInterval && !a.lastCapsCheck.IsZero() {
		return a.metricsAvailable
	}
	caps, err := a.caps.Detect(ctx)
	a.lastCapsCheck = time.Now()
	if err != nil {
		return a.metricsAvailable
	}
	a.metricsAvailable = caps.MetricsServerAvailable
	return a.metricsAvailable
}

func translateNode(node corev1.Node, usage metricsv1beta1.NodeMetrics, now time.Time) telemetry.Sample {
	allocatable := node.Status.Allocatable
	cpuCapacity := allocatable.Cpu().MilliValue()
	memCapacity := allocatable.Memory().Value()

	var cpuPct, memPct float64
	if cpuCapacity > 0 {
		cpuPct = float64(usage.Usage.Cpu().MilliValue()) / float64(cpuCapacity) * 100
	}
	if memCapacity > 0 {
		memPct = float64(usage.Usage.Memory().Value()) / float64(memCapacity) * 100
	}
	cpuPct = clampPct(cpuPct)
	memPct = clampPct(memPct)

	status := telemetry.StatusHealthy
	availability := 100.0
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status != corev1.ConditionTrue {
				status = telemetry.StatusUnhealthy
				availability = 0
			}
			break
		}
	}
	if status == telemetry.StatusHealthy {
		switch {
		case cpuPct > 90 || memPct > 90:
			status = telemetry.StatusCritical
		case cpuPct > 80 || memPct > 80:
			status = telemetry.StatusDegraded
		}
	}

	return telemetry.Sample{
		NodeID:          node.Name,
		Timestamp:       now,
		CPUPct:          cpuPct,
		MemoryPct:       memPct,
		Status:          status,
		AvailabilityPct: availability,
		OverallPct:      (cpuPct + memPct) / 2,
	}
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
