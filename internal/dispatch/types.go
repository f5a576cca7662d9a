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

// Package dispatch classifies every mitigation decision into one of two
// lanes and routes it accordingly: coalesced CRDT rate increments on the
// Scalar lane, ordered audited facts (blocklist changes, WASM reloads and
// rollbacks, Block verdicts) on the Vector lane.
package dispatch

import "hash/fnv"

// Channel identifies which lane an Event belongs to.
type Channel int

const (
	// ChannelScalar carries order-insensitive, mergeable facts: CRDT rate
	// counter increments. Coalesced in memory and flushed on a cadence.
	ChannelScalar Channel = iota
	// ChannelVector carries order-sensitive, audited facts: blocklist
	// mutations, WASM reload/rollback commands, Block verdicts. Appended to
	// an ordered per-key log, never coalesced.
	ChannelVector
)

// Kind is the specific event the mitigation pipeline produced.
type Kind int

const (
	KindRateIncrement Kind = iota
	KindBlocklistInsert
	KindBlocklistRemove
	KindWASMLoad
	KindWASMReload
	KindWASMRollback
	KindBlockVerdict
)

// Event is the domain-agnostic unit the classifier routes: one mitigation
// decision, already made, waiting to be coalesced or audited.
type Event struct {
	Kind     Kind
	SourceIP string // rate-limit key for KindRateIncrement, blocked/verdict IP otherwise
	NodeID   string
	Delta    uint64 // increment amount for KindRateIncrement
	Reason   string // blocklist reason, module name, or verdict detail
	SeqEnd   uint64 // idempotency marker, monotonic per SourceIP
}

// keyHash returns a stable 64-bit id for a string, used to pick an
// accumulator shard and a slot within it.
func keyHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
