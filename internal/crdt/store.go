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

// Package crdt (store.go) holds one G-Counter row per observed source IP in a
// sharded, concurrent-safe map: GetOrCreate/ForEach/Delete over shards, an
// age-based staleness sweep, and a background worker that publishes deltas
// to a bus as rows change.
package crdt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	rendezvous "github.com/dgryski/go-rendezvous"
	"github.com/cespare/xxhash/v2"
)

// managedRow wraps a GCounter with the bookkeeping the background worker
// needs: when it was last touched, for age-based GC.
type managedRow struct {
	mu           sync.Mutex
	counter      *GCounter
	lastUpdated  int64 // UnixNano, updated atomically outside the mutex
}

func newManagedRow() *managedRow {
	return &managedRow{counter: NewGCounter(), lastUpdated: time.Now().UnixNano()}
}

func (m *managedRow) touch() {
	atomic.StoreInt64(&m.lastUpdated, time.Now().UnixNano())
}

func (m *managedRow) age() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&m.lastUpdated)))
}

// shard is one lock-protected bucket of the sharded map. Splitting the
// keyspace across shards keeps the per-request critical section short even
// under a high-cardinality source-IP population, avoiding single-lock
// contention at very high request rates.
type shard struct {
	mu   sync.RWMutex
	rows map[string]*managedRow
}

// Store is the sharded collection of per-IP G-Counter rows for one node.
type Store struct {
	nodeID string
	shards []*shard
	rv     *rendezvous.Rendezvous
}

// NewStore creates a Store with shardCount independently-locked shards. Key
// placement is rendezvous-hashed so a given IP always lands in the same
// shard across the process lifetime (and, incidentally, would land in the
// same shard on any node running the same shard count — useful if a future
// deployment wants to shard across processes rather than only within one).
func NewStore(nodeID string, shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = 16
	}
	names := make([]string, shardCount)
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{rows: make(map[string]*managedRow)}
		names[i] = shardName(i)
	}
	return &Store{
		nodeID: nodeID,
		shards: shards,
		rv:     rendezvous.New(names, xxhash.Sum64String),
	}
}

func shardName(i int) string {
	const hex = "0123456789abcdef"
	if i < 16 {
		return "shard-" + string(hex[i])
	}
	// fall back to a decimal name for unusually large shard counts
	b := []byte("shard-")
	return string(append(b, []byte{byte('0' + i/10), byte('0' + i%10)}...))
}

func (s *Store) shardFor(key string) *shard {
	name := s.rv.Lookup(key)
	for i, sh := range s.shards {
		if shardName(i) == name {
			return sh
		}
	}
	return s.shards[0]
}

// getOrCreate returns the managed row for key, creating it under the shard
// lock if absent.
func (s *Store) getOrCreate(key string) *managedRow {
	sh := s.shardFor(key)

	sh.mu.RLock()
	row, ok := sh.rows[key]
	sh.mu.RUnlock()
	if ok {
		return row
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if row, ok := sh.rows[key]; ok {
		return row
	}
	row = newManagedRow()
	sh.rows[key] = row
	return row
}

// Increment records one local observation of key (a source IP) and returns
// the node's new local count for that key. This is the only mutation path;
// all cross-node knowledge arrives through Merge.
func (s *Store) Increment(key string, delta uint64) uint64 {
	row := s.getOrCreate(key)
	row.mu.Lock()
	local := row.counter.Increment(s.nodeID, delta)
	row.mu.Unlock()
	row.touch()
	return local
}

// Value returns the current global (summed) value for key.
func (s *Store) Value(key string) uint64 {
	row := s.getOrCreate(key)
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.counter.Value()
}

// Merge applies a remote node's observed count for key into the local row.
// Safe to call from any number of goroutines (e.g. one per bus subscription).
func (s *Store) Merge(key, remoteNode string, remoteCount uint64) {
	row := s.getOrCreate(key)
	row.mu.Lock()
	row.counter.Set(remoteNode, remoteCount)
	row.mu.Unlock()
	row.touch()
}

// Snapshot returns an immutable view of every tracked key's per-node counts
// and global value, for GET /api/v1/state/counters.
type Snapshot struct {
	Key    string
	Global uint64
	Nodes  map[string]uint64
}

// ForEach invokes f for every currently tracked key. Each Snapshot's Nodes
// map is a fresh copy, so f may retain it; snapshots of different keys are
// taken one at a time and may reflect different instants.
func (s *Store) ForEach(f func(Snapshot)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		keys := make([]string, 0, len(sh.rows))
		for k := range sh.rows {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
		for _, k := range keys {
			sh.mu.RLock()
			row, ok := sh.rows[k]
			sh.mu.RUnlock()
			if !ok {
				continue
			}
			row.mu.Lock()
			snap := Snapshot{Key: k, Global: row.counter.Value(), Nodes: row.counter.Nodes()}
			row.mu.Unlock()
			f(snap)
		}
	}
}

// gc removes rows whose last update is older than maxAge. This is the only
// operation that can make a key disappear entirely — it does not violate
// the monotonicity invariant for any *surviving* key, and is safe uniformly
// because every node runs the same age policy independently.
func (s *Store) gc(maxAge time.Duration) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, row := range sh.rows {
			if row.age() > maxAge {
				delete(sh.rows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Worker runs the Store's two background loops: periodic GC of stale rows,
// and periodic publication of local deltas onto a Bus. No watermark or
// hysteresis gating guards the publish loop: G-Counter publication has no
// oversubscription risk to guard against, so every row with a nonzero local
// count is simply republished on each tick, whether or not it changed.
type Worker struct {
	store           *Store
	publisher       DeltaPublisher
	publishInterval time.Duration
	gcInterval      time.Duration
	maxAge          time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// DeltaPublisher is the minimal surface the worker needs from the bus layer.
type DeltaPublisher interface {
	PublishDelta(ctx context.Context, nodeID, ip string, count uint64) error
}

// NewWorker wires a Store to a DeltaPublisher with the given cadences.
func NewWorker(store *Store, publisher DeltaPublisher, publishInterval, gcInterval, maxAge time.Duration) *Worker {
	return &Worker{
		store:           store,
		publisher:       publisher,
		publishInterval: publishInterval,
		gcInterval:      gcInterval,
		maxAge:          maxAge,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the publish and GC loops.
func (w *Worker) Start() {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.publishLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.gcLoop()
	}()
}

// Stop halts both loops and waits for them to exit.
func (w *Worker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) publishLoop() {
	ticker := time.NewTicker(w.publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.publishAll()
		case <-w.stopCh:
			w.publishAll() // final flush so in-flight deltas are not lost on drain
			return
		}
	}
}

func (w *Worker) publishAll() {
	w.store.ForEach(func(snap Snapshot) {
		local, ok := snap.Nodes[w.store.nodeID]
		if !ok || local == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = w.publisher.PublishDelta(ctx, w.store.nodeID, snap.Key, local)
		cancel()
	})
}

func (w *Worker) gcLoop() {
	ticker := time.NewTicker(w.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.store.gc(w.maxAge)
		case <-w.stopCh:
			return
		}
	}
}
