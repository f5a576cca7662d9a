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

package crdt

import "testing"

func rowFrom(pairs map[string]uint64) *GCounter {
	g := NewGCounter()
	for node, c := range pairs {
		g.Set(node, c)
	}
	return g
}

func TestGCounterValueSumsAcrossNodes(t *testing.T) {
	g := rowFrom(map[string]uint64{"node-a": 90, "node-b": 90, "node-c": 90})
	if got := g.Value(); got != 270 {
		t.Fatalf("Value() = %d, want 270", got)
	}
}

func TestGCounterMergeIsCommutative(t *testing.T) {
	a := rowFrom(map[string]uint64{"node-a": 10, "node-b": 3})
	b := rowFrom(map[string]uint64{"node-a": 7, "node-b": 20, "node-c": 5})

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)

	if ab.Value() != ba.Value() {
		t.Fatalf("merge not commutative: merge(a,b)=%d merge(b,a)=%d", ab.Value(), ba.Value())
	}
}

func TestGCounterMergeIsAssociative(t *testing.T) {
	a := rowFrom(map[string]uint64{"node-a": 10})
	b := rowFrom(map[string]uint64{"node-b": 20})
	c := rowFrom(map[string]uint64{"node-c": 30})

	abc := a.Clone()
	abc.Merge(b)
	abc.Merge(c)

	bc := b.Clone()
	bc.Merge(c)
	a2 := a.Clone()
	a2.Merge(bc)

	if abc.Value() != a2.Value() {
		t.Fatalf("merge not associative: (a,b),c=%d a,(b,c)=%d", abc.Value(), a2.Value())
	}
}

func TestGCounterMergeIsIdempotent(t *testing.T) {
	a := rowFrom(map[string]uint64{"node-a": 42, "node-b": 7})
	before := a.Value()
	a.Merge(a.Clone())
	if a.Value() != before {
		t.Fatalf("merge(a,a) changed value: before=%d after=%d", before, a.Value())
	}
}

func TestGCounterSetNeverRegresses(t *testing.T) {
	g := NewGCounter()
	g.Set("node-a", 50)
	g.Set("node-a", 10) // stale/out-of-order delta
	if got := g.Local("node-a"); got != 50 {
		t.Fatalf("Local(node-a) = %d, want 50 (regression not rejected)", got)
	}
	g.Set("node-a", 75)
	if got := g.Local("node-a"); got != 75 {
		t.Fatalf("Local(node-a) = %d, want 75", got)
	}
}

func TestGCounterIncrementReturnsNewLocal(t *testing.T) {
	g := NewGCounter()
	if got := g.Increment("node-a", 1); got != 1 {
		t.Fatalf("Increment = %d, want 1", got)
	}
	if got := g.Increment("node-a", 4); got != 5 {
		t.Fatalf("Increment = %d, want 5", got)
	}
}
