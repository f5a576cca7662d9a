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

package l7proxy

import (
	"context"
	"net/http"

	"secbeat/internal/crdt"
	"secbeat/internal/obslog"
	"secbeat/internal/telemetry"
	"secbeat/internal/wasm"
)

// LogSink receives a structured event for every request the engine tags
// Log, independent of the HTTP response already sent to the client.
type LogSink func(event LogEvent)

// LogEvent is the structured record published for an Allow-and-log request.
type LogEvent struct {
	SourceIP string
	Method   string
	URI      string
}

// Inspector is the subset of *wasm.Engine the dispatcher depends on. A
// narrow interface lets tests substitute a fake rather than compile and
// smoke-test real WASM bytecode.
type Inspector interface {
	Inspect(ctx context.Context, moduleName string, rc wasm.RequestContext) (wasm.Action, error)
}

// Dispatcher evaluates the engine's verdict for a request and decides the
// forward/block/throttle outcome. It holds no per-request state; a single
// Dispatcher is shared across every request a server handles.
type Dispatcher struct {
	engine       Inspector
	moduleName   string
	limiter      *crdt.Limiter
	onLog        LogSink
	rateObserver func(sourceIP string)
}

// NewDispatcher builds a Dispatcher evaluating moduleName against engine,
// admitting requests through limiter. onLog and limiter may be nil.
func NewDispatcher(engine Inspector, moduleName string, limiter *crdt.Limiter, onLog LogSink) *Dispatcher {
	if onLog == nil {
		onLog = func(LogEvent) {}
	}
	return &Dispatcher{engine: engine, moduleName: moduleName, limiter: limiter, onLog: onLog}
}

// SetRateObserver installs a callback invoked with the source IP of every
// request that reaches a rate-limit check, admitted or throttled. This is
// independent of the limiter's own synchronous counter: it exists so a
// caller can feed these checks into a separately coalesced, durable log
// without affecting the limiter's real-time admit decision.
func (d *Dispatcher) SetRateObserver(f func(sourceIP string)) {
	d.rateObserver = f
}

// Outcome is what the caller should do with the request after dispatch.
type Outcome int

const (
	OutcomeForward Outcome = iota
	OutcomeBlock
	OutcomeThrottle
	OutcomeEngineFailure
)

// Dispatch runs the request→action contract for one request: build the
// context, call the engine, and translate its verdict (or failure) into an
// Outcome. Engine execution failures — fuel exhaustion, trap, invalid
// return code, or timeout — all collapse to OutcomeEngineFailure so the
// request never reaches the origin on a sandbox failure.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, sourceIP string) Outcome {
	rc := BuildRequestContext(r, sourceIP)

	action, err := d.engine.Inspect(ctx, d.moduleName, rc)
	if err != nil {
		telemetry.ObserveWASMExecFailure()
		obslog.Module(d.moduleName).Warn().Err(err).Str("source_ip", sourceIP).Msg("engine execution failed")
		return OutcomeEngineFailure
	}

	switch action {
	case wasm.ActionAllow:
		return OutcomeForward
	case wasm.ActionBlock:
		telemetry.ObserveBlock("waf_block")
		obslog.Verdict("block", sourceIP).Info().Str("uri", rc.URI).Msg("request blocked")
		return OutcomeBlock
	case wasm.ActionLog:
		d.onLog(LogEvent{SourceIP: sourceIP, Method: rc.Method, URI: rc.URI})
		return OutcomeForward
	case wasm.ActionRateLimit:
		if d.limiter == nil {
			return OutcomeForward
		}
		if d.rateObserver != nil {
			d.rateObserver(sourceIP)
		}
		throttle, global := d.limiter.Admit(sourceIP)
		if throttle {
			telemetry.ObserveRateLimited()
			obslog.Verdict("throttle", sourceIP).Info().Uint64("global_count", global).Msg("rate limit exceeded")
			return OutcomeThrottle
		}
		return OutcomeForward
	default:
		telemetry.ObserveWASMExecFailure()
		return OutcomeEngineFailure
	}
}
