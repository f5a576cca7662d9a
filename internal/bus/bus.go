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

// Package bus carries the two pub/sub subjects a mitigation node depends on:
// secbeat.state.update (CRDT deltas) and secbeat.wasm.reload (fleet-wide
// hot-reload commands). Pluggable, interface-first backends (Redis, Kafka)
// sit behind Bus, repointed at pub/sub rather than idempotent
// commit-batching, because CRDT merge is already idempotent and needs no
// commit-marker bookkeeping.
package bus

import "context"

// Delta is the wire shape of a CRDT increment: node id, source IP, the
// node's new local count, and when it was observed.
type Delta struct {
	NodeID    string `json:"node_id"`
	IP        string `json:"ip"`
	Count     uint64 `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// ReloadCommand is a fleet-wide instruction to hot-swap (or roll back) a WASM
// module, published on secbeat.wasm.reload.
type ReloadCommand struct {
	ModuleName string `json:"module_name"`
	Image      []byte `json:"image,omitempty"`
	Rollback   bool   `json:"rollback,omitempty"`
	IssuedBy   string `json:"issued_by"`
}

// Bus is the full pub/sub surface a mitigation node needs. Implementations:
// RedisBus (primary) and KafkaBus (alternate transport).
type Bus interface {
	PublishDelta(ctx context.Context, nodeID, ip string, count uint64) error
	SubscribeDeltas(ctx context.Context) (<-chan Delta, error)

	PublishReload(ctx context.Context, cmd ReloadCommand) error
	SubscribeReloads(ctx context.Context) (<-chan ReloadCommand, error)

	Close() error
}

const (
	subjectStateUpdate = "secbeat.state.update"
	subjectWasmReload  = "secbeat.wasm.reload"
)
