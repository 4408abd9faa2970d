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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"fleetguard/internal/clock"
	"fleetguard/internal/config"
	"fleetguard/internal/coordinator"
	"fleetguard/internal/flog"
	"fleetguard/internal/source/generator"
	"fleetguard/internal/source/k8s"
)

func main() {
	fmt.Println("========================================")
	fmt.Println("🚀 Fleetguard Control Plane Starting...")
	fmt.Println("========================================")

	configPath := flag.String("config", "", "path to a JSON configuration file")
	simulated := flag.Bool("simulate", false, "use the deterministic in-memory sample generator instead of a live cluster")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	flog.Init(cfg.LogLevel)
	zapLog, err := zap.NewProduction()
	if err != nil {
		zapLog, _ = zap.NewDevelopment()
	}
	defer zapLog.Sync()
	klog.SetLogger(zapr.NewLogger(zapLog))

	fmt.Println("----------------------------------------")
	flog.Info("📋 Using configuration from %q (falls back to defaults)", *configPath)
	flog.Info("   update_interval_ms=%d retention_ms=%d data_dir=%s", cfg.UpdateIntervalMs, cfg.RetentionMs, cfg.DataDir)
	fmt.Println("----------------------------------------")

	flog.Info("📦 Build Information:")
	flog.Info("   Go Version: %s", runtime.Version())
	flog.Info("   Go OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)

	co := coordinator.New(cfg, clock.System{}, zapLog)

	if *simulated {
		flog.Info("🧪 Simulated mode: registering the deterministic sample generator")
		co.RegisterSource(generator.New(nil))
	} else if src, ok := newK8sSource(zapLog); ok {
		co.RegisterSource(src)
	} else {
		flog.Warn("⚠️  No usable cluster client found; falling back to the simulated generator")
		co.RegisterSource(generator.New(nil))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	co.Start(ctx)
	flog.Info("✅ Coordinator started: bus, telemetry engine, analyzer, orchestrator and alert manager are live")

	<-ctx.Done()
	flog.Info("🛑 Shutdown signal received, stopping...")
	co.Stop()
	flog.Info("👋 Fleetguard stopped cleanly")
}

// newK8sSource builds the production SampleSource from in-cluster
// config, falling back to the local kubeconfig for development,
// mirroring metrics/metrics_server.go's InClusterConfig-then-fallback
// pattern. ok is false if neither path yields usable credentials.
func newK8sSource(log *zap.Logger) (*k8s.Adapter, bool) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			flog.Warn("no in-cluster or local kubeconfig available: %v", err)
			return nil, false
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		flog.Warn("could not build Kubernetes clientset: %v", err)
		return nil, false
	}

	metricsClient, err := metricsclient.NewForConfig(restCfg)
	if err != nil {
		flog.Warn("metrics-server client unavailable, node sampling will stall until it is installed: %v", err)
		metricsClient = nil
	}

	return k8s.New(clientset, metricsClient), true
}
