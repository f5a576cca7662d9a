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

// Package crdt implements the grow-only counter (G-Counter) used to defeat
// round-robin rate-limit evasion across a fleet of mitigation nodes, and the
// sharded store that holds one G-Counter per observed source IP.
//
// Algebraic contract: for any G-Counter a, b, c —
// merge(a,b) == merge(b,a), merge(merge(a,b),c) == merge(a,merge(b,c)),
// merge(a,a) == a. These hold because merge is a pointwise maximum over an
// append-only map of per-node counts; no deletion happens inside Merge.
package crdt

// GCounter is a grow-only counter: one monotonically non-decreasing count per
// node identifier. The exported value is the sum across all nodes.
//
// GCounter is not safe for concurrent mutation by multiple goroutines; callers
// needing that guarantee use Store, which serializes access per key.
type GCounter struct {
	counts map[string]uint64
}

// NewGCounter returns an empty counter.
func NewGCounter() *GCounter {
	return &GCounter{counts: make(map[string]uint64)}
}

// Increment bumps this node's own slot by delta and returns the node's new
// local count. Only ever called for the local node id — a node must never
// increment another node's slot directly; that would violate the "local
// semantics" half of the G-Counter contract and break monotonicity under
// merge.
func (g *GCounter) Increment(nodeID string, delta uint64) uint64 {
	g.counts[nodeID] += delta
	return g.counts[nodeID]
}

// Set installs an absolute count for a node, but only if it is not a
// regression — setting a lower value than what is already recorded is a
// silent no-op so that out-of-order delta delivery can never move a slot
// backwards. This is what Merge uses internally, and what remote delta
// application uses directly.
func (g *GCounter) Set(nodeID string, count uint64) {
	if count > g.counts[nodeID] {
		g.counts[nodeID] = count
	}
}

// Value returns the global value: the sum of all per-node counts.
func (g *GCounter) Value() uint64 {
	var total uint64
	for _, c := range g.counts {
		total += c
	}
	return total
}

// Local returns the local node's own count without summing the whole row.
func (g *GCounter) Local(nodeID string) uint64 {
	return g.counts[nodeID]
}

// Merge combines other into g by pointwise maximum. Commutative, associative
// and idempotent by construction: every slot strictly prefers the larger of
// the two observed values, and merging the same row twice observes no change
// because max(x, x) == x.
func (g *GCounter) Merge(other *GCounter) {
	for node, count := range other.counts {
		g.Set(node, count)
	}
}

// Clone returns an independent copy, used to hand out read snapshots without
// exposing the live map to callers outside the store.
func (g *GCounter) Clone() *GCounter {
	cp := &GCounter{counts: make(map[string]uint64, len(g.counts))}
	for k, v := range g.counts {
		cp.counts[k] = v
	}
	return cp
}

// Nodes returns the set of node ids with a non-zero entry, for snapshot
// serialization (GET /api/v1/state/counters).
func (g *GCounter) Nodes() map[string]uint64 {
	return g.Clone().counts
}
