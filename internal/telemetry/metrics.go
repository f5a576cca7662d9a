// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes the Prometheus counters and gauges a mitigation
// node reports: packet verdicts, WASM reload outcomes, CRDT sync lag, and
// per-source block counts. Every public function is safe to call from a hot
// path — no allocation beyond what prometheus.Counter.Inc already does.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	packetsPassedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "secbeat_packets_passed_total",
		Help: "Total packets the XDP filter allowed through, aggregated across per-CPU counters.",
	})
	packetsDroppedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "secbeat_packets_dropped_total",
		Help: "Total packets the XDP filter dropped, aggregated across per-CPU counters.",
	})
	wasmReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secbeat_wasm_reloads_total",
		Help: "Total successful hot-reloads of a WASM module.",
	})
	wasmReloadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secbeat_wasm_reload_failures_total",
		Help: "Total rejected WASM loads/reloads (bad image, missing export, failed smoke test).",
	})
	wasmExecFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secbeat_wasm_exec_failures_total",
		Help: "Total per-request WASM execution failures (trap, fuel exhaustion, timeout, invalid action).",
	})
	crdtSyncLagSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "secbeat_crdt_sync_lag_seconds",
		Help: "Age of the most recently applied CRDT delta from a remote node.",
	})
	blockedSourcesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secbeat_blocked_sources_total",
		Help: "Total block decisions by reason.",
	}, []string{"reason"})
	rateLimitedRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secbeat_rate_limited_requests_total",
		Help: "Total requests answered with a RateLimit verdict.",
	})
)

func init() {
	prometheus.MustRegister(
		packetsPassedTotal,
		packetsDroppedTotal,
		wasmReloadsTotal,
		wasmReloadFailuresTotal,
		wasmExecFailuresTotal,
		crdtSyncLagSeconds,
		blockedSourcesTotal,
		rateLimitedRequestsTotal,
	)
}

// SetPacketTotals publishes the current aggregated pass/drop counts. The
// caller (internal/xdp's periodic reporter) owns the real per-CPU counters;
// this just mirrors their sum into the exposition surface.
func SetPacketTotals(passed, dropped uint64) {
	packetsPassedTotal.Set(float64(passed))
	packetsDroppedTotal.Set(float64(dropped))
}

// ObserveWASMReload records a successful hot-reload.
func ObserveWASMReload() { wasmReloadsTotal.Inc() }

// ObserveWASMReloadFailure records a rejected load or reload attempt.
func ObserveWASMReloadFailure() { wasmReloadFailuresTotal.Inc() }

// ObserveWASMExecFailure records a per-request engine failure.
func ObserveWASMExecFailure() { wasmExecFailuresTotal.Inc() }

// ObserveCRDTDelta reports how stale a just-applied remote delta was,
// computed from the delta's own timestamp.
func ObserveCRDTDelta(observedAt time.Time) {
	crdtSyncLagSeconds.Set(time.Since(observedAt).Seconds())
}

// ObserveBlock records one block decision, labeled by reason (e.g. "manual",
// "syn_flood", "waf_block", "rate_limit").
func ObserveBlock(reason string) { blockedSourcesTotal.WithLabelValues(reason).Inc() }

// ObserveRateLimited records one request answered with a RateLimit verdict.
func ObserveRateLimited() { rateLimitedRequestsTotal.Inc() }

// Handler returns the Prometheus text-exposition HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }
