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

package dispatch

import "time"

// AuditSink persists Vector-lane events in arrival order as they are
// routed, independent of the Scalar lane's coalesced flush cadence.
type AuditSink interface {
	OnAudit(Event)
}

// PipelineOptions configures the Scalar lane. The Vector lane has no
// coalescing parameters — every event it receives is persisted immediately.
type PipelineOptions struct {
	Shards        int
	OrderPow2     int
	CountThresh   int
	TimeCap       time.Duration
	FlushInterval time.Duration
	Buffer        int

	RateSink  RateBatchSink
	AuditSink AuditSink
}

// Pipeline wires the Scalar lane (coalescing accumulator + background
// service) and the Vector lane (per-source-IP ordered router) behind one
// entry point: classify an Event, then route it.
type Pipeline struct {
	scalar *ScalarService
	vector *VectorRouter
	audit  AuditSink
}

// NewPipeline constructs and wires a Pipeline from opts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	acc := NewScalarAccumulator(opts.Shards, opts.OrderPow2, opts.CountThresh, opts.TimeCap)
	svc := NewScalarService(acc, opts.RateSink, ScalarServiceOptions{
		Buffer: opts.Buffer, FlushInterval: opts.FlushInterval,
	})
	return &Pipeline{scalar: svc, vector: NewVectorRouter(), audit: opts.AuditSink}
}

// Start launches the Scalar lane's background worker.
func (p *Pipeline) Start() { p.scalar.Start() }

// Stop stops the Scalar lane's worker, flushing whatever remains.
func (p *Pipeline) Stop() { p.scalar.Stop() }

// FlushScalar requests an immediate out-of-band Scalar-lane flush.
func (p *Pipeline) FlushScalar() { p.scalar.Flush() }

// Handle classifies ev and routes it: Scalar events go to the coalescing
// accumulator (best-effort non-blocking first, falling back to a blocking
// enqueue under sustained overload); Vector events are appended to their
// source IP's ordered queue and, if an AuditSink is configured, persisted
// immediately.
func (p *Pipeline) Handle(ev Event) error {
	channel, err := Classify(ev)
	if err != nil {
		return err
	}
	switch channel {
	case ChannelScalar:
		if !p.scalar.TryIngest(ev) {
			p.scalar.Ingest(ev)
		}
	case ChannelVector:
		p.vector.Enqueue(ev)
		if p.audit != nil {
			p.audit.OnAudit(ev)
		}
	}
	return nil
}

// DrainVector returns and clears every queued Vector-lane event for ip.
func (p *Pipeline) DrainVector(ip string) []Event {
	return p.vector.Drain(ip)
}
