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

// Package config holds the nested configuration record recognized by
// the control plane (§6 of the design). Values are loaded with defaults
// applied first, then overridden from a JSON file if one is present, and
// guarded by a mutex so the coordinator can hot-reload without races.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"fleetguard/internal/fgerrors"
)

// ThresholdPair is a warning/critical pair used by the alert manager's
// metric->threshold table.
type ThresholdPair struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Thresholds covers every metric kind the Alert Manager evaluates.
type Thresholds struct {
	Latency      ThresholdPair `json:"latency"`
	CPU          ThresholdPair `json:"cpu"`
	Memory       ThresholdPair `json:"memory"`
	Disk         ThresholdPair `json:"disk"`
	ErrorRate    ThresholdPair `json:"error_rate"`
	Availability ThresholdPair `json:"availability"`
	Cost         ThresholdPair `json:"cost"`
}

// FailurePredictionModel configures the risk-scoring analyzer.
type FailurePredictionModel struct {
	Lookback  int     `json:"lookback"`
	Horizon   int     `json:"horizon"`
	Threshold float64 `json:"threshold"`
}

// AnomalyModel configures deviation-from-baseline sensitivity.
type AnomalyModel struct {
	Sensitivity float64 `json:"sensitivity"`
}

// DegradationModel configures the trend-window degradation check.
type DegradationModel struct {
	TrendWindow  int     `json:"trend_window"`
	ThresholdPct float64 `json:"threshold_pct"`
}

// Models bundles the three analyzer model configs.
type Models struct {
	FailurePrediction FailurePredictionModel `json:"failure_prediction"`
	Anomaly           AnomalyModel           `json:"anomaly"`
	Degradation       DegradationModel       `json:"degradation"`
}

// PolicyConfig is one row of the healing orchestrator's cooldown/retry
// gate, keyed by policy name (node_restart, service_restart, ...).
type PolicyConfig struct {
	Enabled          bool    `json:"enabled"`
	MaxRetries       int     `json:"max_retries"`
	CooldownMs       int64   `json:"cooldown_ms"`
	FailureThreshold float64 `json:"failure_threshold"`
}

// Policies covers every named policy in the strategy map.
type Policies struct {
	NodeRestart        PolicyConfig `json:"node_restart"`
	ServiceRestart      PolicyConfig `json:"service_restart"`
	ResourceScaling     PolicyConfig `json:"resource_scaling"`
	NodeIsolation       PolicyConfig `json:"node_isolation"`
	ClusterRebalancing  PolicyConfig `json:"cluster_rebalancing"`
}

// BusConfig configures the external-broker bridge.
type BusConfig struct {
	ExternalURL string `json:"external_url"`
	ReconnectMs int64  `json:"reconnect_ms"`
	BufferSize  int    `json:"buffer_size"`
}

// Config is the full nested configuration record.
type Config struct {
	mu sync.RWMutex

	UpdateIntervalMs int64      `json:"update_interval_ms"`
	RetentionMs      int64      `json:"retention_ms"`
	Thresholds       Thresholds `json:"thresholds"`
	Models           Models     `json:"models"`
	Policies         Policies   `json:"policies"`
	Bus              BusConfig  `json:"bus"`
	DataDir          string     `json:"data_dir"`
	LogLevel         string     `json:"log_level"`
}

// Default returns the baseline configuration described in the design:
// 1s telemetry tick, 7-day retention, the risk/anomaly/degradation
// thresholds from §4.5, and the strategy-map policies from §4.6.
func Default() *Config {
	return &Config{
		UpdateIntervalMs: 1000,
		RetentionMs:      int64(7 * 24 * time.Hour / time.Millisecond),
		Thresholds: Thresholds{
			Latency:      ThresholdPair{Warning: 100, Critical: 150},
			CPU:          ThresholdPair{Warning: 80, Critical: 90},
			Memory:       ThresholdPair{Warning: 80, Critical: 90},
			Disk:         ThresholdPair{Warning: 85, Critical: 95},
			ErrorRate:    ThresholdPair{Warning: 5, Critical: 10},
			Availability: ThresholdPair{Warning: 98, Critical: 95},
			Cost:         ThresholdPair{Warning: 0, Critical: 0},
		},
		Models: Models{
			FailurePrediction: FailurePredictionModel{Lookback: 30, Horizon: 300, Threshold: 0.7},
			Anomaly:           AnomalyModel{Sensitivity: 0.5},
			Degradation:       DegradationModel{TrendWindow: 300, ThresholdPct: 15},
		},
		Policies: Policies{
			NodeRestart:        PolicyConfig{Enabled: true, MaxRetries: 3, CooldownMs: 300000, FailureThreshold: 0.6},
			ServiceRestart:     PolicyConfig{Enabled: true, MaxRetries: 3, CooldownMs: 120000, FailureThreshold: 0.6},
			ResourceScaling:    PolicyConfig{Enabled: true, MaxRetries: 3, CooldownMs: 180000, FailureThreshold: 0.6},
			NodeIsolation:      PolicyConfig{Enabled: true, MaxRetries: 2, CooldownMs: 300000, FailureThreshold: 0.6},
			ClusterRebalancing: PolicyConfig{Enabled: true, MaxRetries: 2, CooldownMs: 300000, FailureThreshold: 0.6},
		},
		Bus: BusConfig{
			ExternalURL: "",
			ReconnectMs: 5000,
			BufferSize:  1024,
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a JSON configuration file, applying it on top of Default().
// A missing path is not an error; an unparsable one is a ConfigError,
// the only error category that aborts startup.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fgerrors.ConfigErrorf("config.Load", "reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fgerrors.ConfigErrorf("config.Load", "parsing %s: %v", path, err)
	}
	return cfg, nil
}

// Snapshot returns a copy of the configuration safe for concurrent reads.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}

// UpdateInterval returns the telemetry tick period.
func (c *Config) UpdateInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.UpdateIntervalMs) * time.Millisecond
}

// Retention returns the Sample Store's age bound.
func (c *Config) Retention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.RetentionMs) * time.Millisecond
}
