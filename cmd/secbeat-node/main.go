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

// Package main wires one mitigation node: the XDP-adjacent packet fast
// path, the SYN-cookie proxy, the TLS-terminating L7 proxy with WASM
// inspection, the distributed rate counter, the Scalar/Vector dispatch
// lanes, and the loopback management API, all sharing one process
// lifetime and one graceful-shutdown path.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"secbeat/internal/api"
	"secbeat/internal/bus"
	"secbeat/internal/config"
	"secbeat/internal/crdt"
	"secbeat/internal/dispatch"
	"secbeat/internal/l7proxy"
	"secbeat/internal/obslog"
	"secbeat/internal/sinks"
	"secbeat/internal/synproxy"
	"secbeat/internal/telemetry"
	"secbeat/internal/wasm"
	"secbeat/internal/xdp"
)

func main() {
	// Flags double as the production knobs config.Config's zero value
	// can't express; file/environment-based config loading is an external
	// collaborator's job this binary doesn't take on (see internal/config).
	nodeID := flag.String("node_id", "", "unique node identifier (default: a generated uuid)")
	iface := flag.String("interface", "", "network interface the packet fast path binds to")
	xdpMode := flag.String("xdp_mode", "software", "packet fast path mode: xdp or software")
	listenAddr := flag.String("listen", ":8443", "L7 proxy listen address")
	originAddr := flag.String("origin", "127.0.0.1:8080", "origin address the L7 proxy forwards admitted requests to")
	wasmModule := flag.String("wasm_module", "waf-core", "name of the WASM rule module evaluated per request")
	wasmImagePath := flag.String("wasm_image", "", "path to the initial WASM module image to load at startup")
	rateLimit := flag.Int64("rate_limit", 100, "per-source-IP global rate limit admitted by the distributed counter")
	busKind := flag.String("bus", "redis", "pub/sub transport for CRDT deltas and reload commands: redis or kafka")
	redisAddr := flag.String("redis_addr", "127.0.0.1:6379", "redis address, used when -bus=redis")
	kafkaBrokers := flag.String("kafka_brokers", "", "comma-separated kafka broker list, used when -bus=kafka")
	apiAddr := flag.String("api_addr", "127.0.0.1:7070", "loopback management API listen address")
	apiToken := flag.String("api_token", "", "bearer token the management API requires (required)")
	metricsAddr := flag.String("metrics_addr", ":9090", "Prometheus /metrics listen address")
	rateLogPath := flag.String("rate_log", "rates.jsonl", "rate-batch JSONL log path")
	auditLogPath := flag.String("audit_log", "audit.jsonl", "audit-event JSONL log path")
	flag.Parse()

	if *nodeID == "" {
		*nodeID = uuid.NewString()
	}
	if *apiToken == "" {
		fmt.Fprintln(os.Stderr, "secbeat-node: -api_token is required")
		os.Exit(1)
	}

	obslog.Init(*nodeID, os.Stderr)
	log := obslog.L()

	cfg := config.Default()
	cfg.NodeID = *nodeID
	cfg.XDP.Interface = *iface
	cfg.XDP.Mode = *xdpMode
	cfg.L7Proxy.ListenAddr = *listenAddr
	cfg.L7Proxy.OriginAddr = *originAddr
	cfg.RateLimit.Limit = *rateLimit
	cfg.Bus.Kind = *busKind
	cfg.Bus.RedisAddr = *redisAddr
	cfg.API.ListenAddr = *apiAddr
	cfg.API.AuthToken = *apiToken

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Packet fast path: blocklist + per-CPU counters ---
	blocklist := xdp.NewSoftBlocklist(cfg.XDP.BlocklistCapacity)
	defer blocklist.Close()
	stats := xdp.NewStats()
	go stats.RunReporter(ctx, 2*time.Second)
	if cfg.XDP.Mode == "xdp" {
		log.Warn().Msg("xdp_mode=xdp requested; attaching the compiled XDP program to the interface is a deployment-time step outside this process, falling back to the software control plane for blocklist/stats")
	}

	// --- SYN cookie proxy ---
	cookies, err := synproxy.NewCookieGenerator()
	if err != nil {
		log.Fatal().Err(err).Msg("generate syn cookie secret")
	}
	slots := synproxy.NewSlotPool(cfg.SynProxy.HandshakeCapacity)
	synProxy := synproxy.NewProxy(cookies, slots, cfg.L7Proxy.OriginAddr, cfg.SynProxy.HandshakeTTL)
	go sweepLoop(ctx, synProxy, 5*time.Second)

	// --- WASM inspection engine ---
	engine := wasm.NewEngine(ctx, wasm.EngineOptions{
		FuelBudget:    int64(cfg.WASM.FuelBudget),
		MemoryPages:   cfg.WASM.MemoryLimitPages,
		Timeout:       cfg.WASM.ExecutionTimeout,
		RollbackDepth: cfg.WASM.RollbackDepth,
	})
	defer engine.Close(ctx)
	if *wasmImagePath != "" {
		image, err := os.ReadFile(*wasmImagePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *wasmImagePath).Msg("read initial wasm module image")
		}
		if err := engine.LoadModule(ctx, *wasmModule, image); err != nil {
			log.Fatal().Err(err).Str("module_name", *wasmModule).Msg("load initial wasm module")
		}
		telemetry.ObserveWASMReload()
	}

	// --- Distributed rate counter and its bus transport ---
	store := crdt.NewStore(*nodeID, 16)
	transport, err := buildBus(cfg.Bus, *kafkaBrokers)
	if err != nil {
		log.Fatal().Err(err).Msg("construct pub/sub bus")
	}
	defer transport.Close()
	worker := crdt.NewWorker(store, transport, cfg.RateLimit.PublishInterval, cfg.RateLimit.GCInterval, cfg.RateLimit.MaxCounterAge)
	worker.Start()
	defer worker.Stop()
	go subscribeDeltas(ctx, transport, store, log)
	go subscribeReloads(ctx, transport, engine, log)
	limiter := crdt.NewLimiter(store, cfg.RateLimit.Limit)

	// --- Scalar/Vector dispatch lanes ---
	rateSink, err := sinks.NewRateBatchFileSink(*rateLogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open rate-batch log")
	}
	defer rateSink.Close()
	auditSink, err := sinks.NewAuditLogSink(*auditLogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open audit log")
	}
	defer auditSink.Close()
	pipeline := dispatch.NewPipeline(dispatch.PipelineOptions{
		Shards: 8, OrderPow2: 12, CountThresh: 4096,
		TimeCap: 3 * time.Millisecond, FlushInterval: 2 * time.Millisecond,
		Buffer:    8192,
		RateSink:  rateSink,
		AuditSink: auditSink,
	})
	pipeline.Start()
	defer pipeline.Stop()

	// --- L7 proxy ---
	var onLog l7proxy.LogSink = func(ev l7proxy.LogEvent) {
		_ = pipeline.Handle(dispatch.Event{Kind: dispatch.KindBlockVerdict, SourceIP: ev.SourceIP, Reason: "logged", SeqEnd: uint64(time.Now().UnixNano())})
	}
	dispatcher := l7proxy.NewDispatcher(engine, *wasmModule, limiter, onLog)
	// Every rate-limit check, admitted or throttled, is tallied into the
	// Scalar lane as a durable, coalesced fact distinct from the limiter's
	// own synchronous in-memory counter used for the admit decision itself.
	dispatcher.SetRateObserver(func(sourceIP string) {
		_ = pipeline.Handle(dispatch.Event{Kind: dispatch.KindRateIncrement, SourceIP: sourceIP, Delta: 1, SeqEnd: uint64(time.Now().UnixNano())})
	})
	proxyServer, err := l7proxy.NewServer(l7proxy.ServerOptions{
		ListenAddr: cfg.L7Proxy.ListenAddr,
		OriginAddr: cfg.L7Proxy.OriginAddr,
	}, dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("construct l7 proxy server")
	}
	go func() {
		log.Info().Str("addr", cfg.L7Proxy.ListenAddr).Msg("l7 proxy listening")
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("l7 proxy serve")
		}
	}()
	defer proxyServer.Close()

	// --- Management API ---
	mgmt := api.NewServer(cfg.API.AuthToken, blocklist, stats, api.EngineManager{Engine: engine}, store)
	mgmtServer := &http.Server{Addr: cfg.API.ListenAddr, Handler: mgmt.Mux()}
	go func() {
		log.Info().Str("addr", cfg.API.ListenAddr).Msg("management api listening")
		if err := mgmtServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("management api serve")
		}
	}()
	defer mgmtServer.Close()

	// --- Metrics exposition ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
	go func() {
		log.Info().Str("addr", *metricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("metrics serve")
		}
	}()
	defer metricsServer.Close()

	log.Info().Str("node_id", *nodeID).Msg("secbeat-node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = mgmtServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	pipeline.FlushScalar()
	_ = rateSink.Flush()
	_ = auditSink.Flush()
}

// buildBus constructs the configured pub/sub transport. Kafka brokers are
// parsed from a comma-separated flag since this binary takes no file- or
// environment-based configuration of its own.
func buildBus(cfg config.BusConfig, kafkaBrokersFlag string) (bus.Bus, error) {
	switch cfg.Kind {
	case "kafka":
		brokers := splitNonEmpty(kafkaBrokersFlag)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("secbeat-node: -bus=kafka requires -kafka_brokers")
		}
		producer, err := bus.NewSaramaSyncProducer(brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		consumer, err := newSaramaConsumer(brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		return bus.NewKafkaBus(bus.SaramaProducer{Producer: producer}, consumer, cfg.KafkaTopic), nil
	default:
		return bus.NewRedisBus(cfg.RedisAddr), nil
	}
}

// subscribeDeltas merges every remote CRDT delta into store until ctx is
// cancelled, restarting the subscription on transport errors rather than
// giving up on the bus for the rest of the process lifetime.
func subscribeDeltas(ctx context.Context, transport bus.Bus, store *crdt.Store, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		deltas, err := transport.SubscribeDeltas(ctx)
		if err != nil {
			log.Error().Err(err).Msg("subscribe deltas")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for d := range deltas {
			store.Merge(d.IP, d.NodeID, d.Count)
			telemetry.ObserveCRDTDelta(time.Unix(0, d.Timestamp))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// subscribeReloads applies every fleet-wide WASM reload/rollback command
// until ctx is cancelled.
func subscribeReloads(ctx context.Context, transport bus.Bus, engine *wasm.Engine, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cmds, err := transport.SubscribeReloads(ctx)
		if err != nil {
			log.Error().Err(err).Msg("subscribe reloads")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for cmd := range cmds {
			applyReload(ctx, engine, cmd, log)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func applyReload(ctx context.Context, engine *wasm.Engine, cmd bus.ReloadCommand, log zerolog.Logger) {
	mlog := obslog.Module(cmd.ModuleName)
	if cmd.Rollback {
		if err := engine.Cache().Rollback(cmd.ModuleName); err != nil {
			telemetry.ObserveWASMReloadFailure()
			mlog.Error().Err(err).Msg("rollback failed")
			return
		}
		mlog.Info().Msg("rolled back")
		return
	}
	if err := engine.SwapModule(ctx, cmd.ModuleName, cmd.Image); err != nil {
		telemetry.ObserveWASMReloadFailure()
		mlog.Error().Err(err).Str("issued_by", cmd.IssuedBy).Msg("reload failed")
		return
	}
	telemetry.ObserveWASMReload()
	mlog.Info().Str("issued_by", cmd.IssuedBy).Msg("reloaded")
}

func newSaramaConsumer(brokers []string) (bus.SaramaConsumer, error) {
	c, err := sarama.NewConsumer(brokers, sarama.NewConfig())
	if err != nil {
		return bus.SaramaConsumer{}, err
	}
	return bus.SaramaConsumer{Consumer: c}, nil
}

func sweepLoop(ctx context.Context, p *synproxy.Proxy, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Sweep(now)
		}
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
