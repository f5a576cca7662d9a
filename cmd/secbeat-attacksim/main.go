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

// Package main implements secbeat-attacksim, a synthetic traffic generator
// and soak tool for the Scalar/Vector dispatch pipeline.
//
// Overview:
//
//	secbeat-attacksim produces a configurable mix of ordinary per-source rate
//	traffic and flagged (WAF-block-worthy) traffic, routes it through the
//	same dispatch.Pipeline a live node runs, and persists both lanes to
//	JSONL files. It exposes Prometheus metrics for coalescing behavior and
//	flush cadence, so the pipeline's batching gains are measurable without a
//	live attacker.
//
// Usage:
//
//	go run ./cmd/secbeat-attacksim -http :8081 -qps 20000 -malicious_coverage 0.05 \
//	    -sources 10000 -rate_log rates.jsonl -audit_log audit.jsonl
//
//	Observe metrics at GET /metrics. Optional: POST /inject?source_ip=IP&kind=rate|block
//	to inject a single event manually. When -target is set, attacksim also
//	drives real HTTP requests at a live secbeat-node L7 listener, mixing in
//	a malicious User-Agent at -malicious_coverage so the WAF and rate-limit
//	paths are exercised end to end rather than only in-process.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"secbeat/internal/dispatch"
	"secbeat/internal/sinks"
)

// metricRateSink wraps a RateBatchFileSink to observe flush intervals and
// batch sizes, mirroring the coalescing visibility the pipeline itself
// doesn't expose on its own.
type metricRateSink struct {
	inner      *sinks.RateBatchFileSink
	last       atomic.Int64 // unix nano
	flushHist  prometheus.Observer
	batchGauge prometheus.Counter
}

func (m *metricRateSink) OnRateBatches(b []dispatch.RateBatch) {
	prev := time.Unix(0, m.last.Swap(time.Now().UnixNano()))
	if !prev.IsZero() && m.flushHist != nil {
		m.flushHist.Observe(time.Since(prev).Seconds())
	}
	if m.batchGauge != nil {
		m.batchGauge.Add(float64(len(b)))
	}
	m.inner.OnRateBatches(b)
}

func main() {
	shards := flag.Int("shards", 8, "scalar lane shards")
	orderPow2 := flag.Int("order_pow2", 12, "accumulator table size as power-of-two")
	countThresh := flag.Int("count_thresh", 4096, "flush count threshold per shard")
	timeCap := flag.Duration("time_cap", 3*time.Millisecond, "per-shard time cap")
	flushEvery := flag.Duration("flush", 2*time.Millisecond, "scalar service flush interval")
	rateLog := flag.String("rate_log", "rates.jsonl", "rate-batch JSONL log path")
	auditLog := flag.String("audit_log", "audit.jsonl", "audit-event JSONL log path")
	httpAddr := flag.String("http", ":8081", "metrics/inject HTTP listen address")

	maliciousCoverage := flag.Float64("malicious_coverage", 0.05, "probability a generated request is flagged as a WAF-block candidate (0..1)")
	sources := flag.Int("sources", 1000, "number of distinct synthetic source IPs")
	qps := flag.Int("qps", 20000, "target events per second")
	burst := flag.Int("burst", 1000, "burst size per generator tick")
	duration := flag.Duration("duration", 30*time.Second, "run duration; 0 for forever")
	target := flag.String("target", "", "optional live secbeat-node L7 listen address to also drive real HTTP load against")
	flag.Parse()

	if *flushEvery <= 0 {
		*flushEvery = 2 * time.Millisecond
	}
	if *timeCap <= 0 {
		*timeCap = 3 * time.Millisecond
	}
	if *shards <= 0 {
		*shards = 8
	}
	if *orderPow2 <= 0 {
		*orderPow2 = 12
	}
	if *countThresh <= 0 {
		*countThresh = 4096
	}
	if *maliciousCoverage < 0 {
		*maliciousCoverage = 0
	}
	if *maliciousCoverage > 1 {
		*maliciousCoverage = 1
	}
	if *sources <= 0 {
		*sources = 1000
	}
	if *qps <= 0 {
		*qps = 20000
	}
	if *burst <= 0 {
		*burst = 1000
	}
	if *duration < 0 {
		*duration = 0
	}

	reg := prometheus.DefaultRegisterer
	totalOps := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_total_ops", Help: "Total synthetic events generated"})
	rateOps := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_rate_ops", Help: "Events routed to the scalar (rate-increment) lane"})
	blockOps := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_block_ops", Help: "Events routed to the vector (block-verdict) lane"})
	batchesOut := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_rate_batches_out_total", Help: "Coalesced rate batches flushed to the sink"})
	flushInterval := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "attacksim_flush_interval_seconds", Help: "Observed interval between rate-sink writes", Buckets: prometheus.DefBuckets})
	httpForward := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_http_forward_total", Help: "Real HTTP requests that got a 2xx from -target"})
	httpBlocked := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_http_blocked_total", Help: "Real HTTP requests that got a 403 from -target"})
	httpThrottled := prometheus.NewCounter(prometheus.CounterOpts{Name: "attacksim_http_throttled_total", Help: "Real HTTP requests that got a 429 from -target"})
	reg.MustRegister(totalOps, rateOps, blockOps, batchesOut, flushInterval, httpForward, httpBlocked, httpThrottled)

	rateFileSink, err := sinks.NewRateBatchFileSink(*rateLog)
	if err != nil {
		log.Fatalf("open rate-batch log: %v", err)
	}
	defer rateFileSink.Close()
	msink := &metricRateSink{inner: rateFileSink, flushHist: flushInterval, batchGauge: batchesOut}

	auditSink, err := sinks.NewAuditLogSink(*auditLog)
	if err != nil {
		log.Fatalf("open audit log: %v", err)
	}
	defer auditSink.Close()

	pipeline := dispatch.NewPipeline(dispatch.PipelineOptions{
		Shards: *shards, OrderPow2: *orderPow2, CountThresh: *countThresh,
		TimeCap: *timeCap, FlushInterval: *flushEvery,
		Buffer:    8192,
		RateSink:  msink,
		AuditSink: auditSink,
	})
	pipeline.Start()
	defer pipeline.Stop()

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/inject", func(w http.ResponseWriter, r *http.Request) {
		sourceIP := r.URL.Query().Get("source_ip")
		if sourceIP == "" {
			http.Error(w, "source_ip is required", 400)
			return
		}
		kind := r.URL.Query().Get("kind")
		n := int64(1)
		if nStr := r.URL.Query().Get("n"); nStr != "" {
			if v, err := strconv.ParseInt(nStr, 10, 64); err == nil {
				n = v
			}
		}
		ev := syntheticEvent(sourceIP, kind == "block", uint64(n))
		if err := pipeline.Handle(ev); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if ev.Kind == dispatch.KindRateIncrement {
			rateOps.Inc()
		} else {
			blockOps.Inc()
		}
		w.WriteHeader(202)
	})
	go func() {
		log.Printf("secbeat-attacksim listening on %s", *httpAddr)
		if err := http.ListenAndServe(*httpAddr, nil); err != nil {
			log.Fatalf("http: %v", err)
		}
	}()

	var httpClient *http.Client
	if *target != "" {
		httpClient = &http.Client{Timeout: 2 * time.Second}
	}

	rng := rand.New(rand.NewSource(1))
	stop := make(chan struct{})
	go func() {
		interval := time.Second * time.Duration(maxInt(1, *burst)) / time.Duration(maxInt(1, *qps))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		burstLeft := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				burstLeft += *burst
				for burstLeft > 0 {
					burstLeft--
					totalOps.Inc()
					idx := rng.Intn(maxInt(1, *sources))
					sourceIP := fmt.Sprintf("198.51.100.%d", 1+idx%254)
					malicious := rng.Float64() < *maliciousCoverage

					ev := syntheticEvent(sourceIP, malicious, 1)
					if err := pipeline.Handle(ev); err == nil {
						if ev.Kind == dispatch.KindRateIncrement {
							rateOps.Inc()
						} else {
							blockOps.Inc()
						}
					}

					if httpClient != nil {
						fireHTTP(httpClient, *target, sourceIP, malicious, httpForward, httpBlocked, httpThrottled)
					}
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var endTimer <-chan time.Time
	if *duration > 0 {
		endTimer = time.After(*duration)
	}
	select {
	case <-sigCh:
	case <-endTimer:
	}
	close(stop)
	time.Sleep(200 * time.Millisecond)
}

// syntheticEvent builds the dispatch.Event a real node would produce for
// this source: ordinary traffic becomes a rate increment, a "malicious"
// draw becomes a block-verdict audit fact, matching the two kinds the
// pipeline actually routes differently.
func syntheticEvent(sourceIP string, malicious bool, delta uint64) dispatch.Event {
	now := uint64(time.Now().UnixNano())
	if malicious {
		return dispatch.Event{Kind: dispatch.KindBlockVerdict, SourceIP: sourceIP, Reason: "attacksim_synthetic", SeqEnd: now}
	}
	return dispatch.Event{Kind: dispatch.KindRateIncrement, SourceIP: sourceIP, Delta: delta, SeqEnd: now}
}

// fireHTTP drives one real request at target, tagging malicious draws with
// the header the WAF rule module matches on, and tallies the outcome by
// status code.
func fireHTTP(client *http.Client, target, sourceIP string, malicious bool, forward, blocked, throttled prometheus.Counter) {
	req, err := http.NewRequest(http.MethodGet, "http://"+target+"/", nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Forwarded-For", sourceIP)
	if malicious {
		req.Header.Set("User-Agent", "EvilBot")
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusForbidden:
		blocked.Inc()
	case http.StatusTooManyRequests:
		throttled.Inc()
	default:
		forward.Inc()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
