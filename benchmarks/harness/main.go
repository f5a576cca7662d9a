// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"secbeat/internal/crdt"
	"secbeat/internal/dispatch"
)

type variantType string

const (
	variantScalar variantType = "scalar"
	variantAtomic variantType = "atomic"
	variantBatch  variantType = "batch"
	variantCRDT   variantType = "crdt"
	variantToken  variantType = "token"
	variantLeaky  variantType = "leaky"
)

type metrics struct {
	latencies []time.Duration
	longOps   int64 // ops slower than 5x median
}

type persister struct {
	writeDelay    time.Duration
	logicalWrites atomic.Int64
	dbCalls       atomic.Int64
}

func newPersister(delay time.Duration) *persister { return &persister{writeDelay: delay} }

// write simulates a datastore write call that records n logical events in one db call.
func (p *persister) write(n int) {
	// Count a DB call even when n == 0 (e.g., CRDT merge control-plane)
	p.dbCalls.Add(1)
	if n > 0 {
		p.logicalWrites.Add(int64(n))
	}
	if p.writeDelay > 0 {
		time.Sleep(p.writeDelay)
	}
}

// ---- Producers (hot path) implement the same interface ----

type producer interface {
	update(key string, delta int64) // hot-path update (measured)
	startBG()
	stopBG()
}

// ---- Atomic variant (persist every op) ----

type atomicCounter struct {
	p *persister
	m sync.Map // key -> *atomic.Int64 (we only need presence; value unused)
}

func newAtomic(p *persister) *atomicCounter { return &atomicCounter{p: p} }

func (a *atomicCounter) update(key string, delta int64) {
	// Simulate an immediate persist for each logical op.
	a.p.write(1)
}
func (a *atomicCounter) startBG() {}
func (a *atomicCounter) stopBG()  {}

// ---- Batching variant (group ops by size or time; still logicalWrites = N) ----

type batcher struct {
	p         *persister
	batchSize int
	interval  time.Duration

	mu    sync.Mutex
	buf   int
	stopC chan struct{}
	wg    sync.WaitGroup
}

func newBatcher(p *persister, size int, interval time.Duration) *batcher {
	return &batcher{p: p, batchSize: size, interval: interval, stopC: make(chan struct{})}
}

func (b *batcher) update(_ string, delta int64) {
	// Every logical op is still a logical write; we only reduce dbCalls via batching.
	b.mu.Lock()
	b.buf++
	if b.buf >= b.batchSize {
		n := b.buf
		b.buf = 0
		b.mu.Unlock()
		b.p.write(n)
		return
	}
	b.mu.Unlock()
}

func (b *batcher) startBG() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		t := time.NewTicker(b.interval)
		defer t.Stop()
		for {
			select {
			case <-b.stopC:
				return
			case <-t.C:
				b.mu.Lock()
				n := b.buf
				b.buf = 0
				b.mu.Unlock()
				if n > 0 {
					b.p.write(n)
				}
			}
		}
	}()
}

func (b *batcher) stopBG() {
	close(b.stopC)
	b.wg.Wait()
	b.mu.Lock()
	n := b.buf
	b.buf = 0
	b.mu.Unlock()
	if n > 0 {
		b.p.write(n)
	}
}

// ---- Scalar lane variant (real coalescing accumulator + service) ----

// harnessRateSink adapts the persister to dispatch.RateBatchSink, so the
// real Scalar lane's flush cadence drives the same write-call accounting
// every other variant here reports against.
type harnessRateSink struct {
	p *persister

	batchesOut  atomic.Int64
	sumAbsDelta atomic.Int64
}

func (h *harnessRateSink) OnRateBatches(b []dispatch.RateBatch) {
	if len(b) == 0 {
		return
	}
	h.batchesOut.Add(int64(len(b)))
	var total int64
	for _, rb := range b {
		total += int64(rb.Delta)
	}
	h.sumAbsDelta.Add(total)
	h.p.write(len(b))
}

type scalarHarness struct {
	p    *persister
	sink *harnessRateSink
	svc  *dispatch.ScalarService
}

func newScalarHarness(p *persister, shards, orderPow2, countThresh int, timeCap, flushInterval time.Duration) *scalarHarness {
	sink := &harnessRateSink{p: p}
	acc := dispatch.NewScalarAccumulator(shards, orderPow2, countThresh, timeCap)
	svc := dispatch.NewScalarService(acc, sink, dispatch.ScalarServiceOptions{Buffer: 8192, FlushInterval: flushInterval})
	return &scalarHarness{p: p, sink: sink, svc: svc}
}

func (s *scalarHarness) update(key string, delta int64) {
	d := delta
	if d < 0 {
		d = -d
	}
	ev := dispatch.Event{Kind: dispatch.KindRateIncrement, SourceIP: key, Delta: uint64(d), SeqEnd: uint64(time.Now().UnixNano())}
	if !s.svc.TryIngest(ev) {
		s.svc.Ingest(ev)
	}
}

func (s *scalarHarness) startBG() { s.svc.Start() }
func (s *scalarHarness) stopBG()  { s.svc.Stop() }

// ---- CRDT G-Counter variant (real sharded store + worker, N replicas) ----

// fanoutPublisher merges a node's local delta directly into every other
// replica's store, standing in for a bus round-trip the harness has no
// broker process to exercise.
type fanoutPublisher struct {
	p     *persister
	peers []*crdt.Store
}

func (f *fanoutPublisher) PublishDelta(_ context.Context, nodeID, ip string, count uint64) error {
	f.p.write(1)
	for _, peer := range f.peers {
		peer.Merge(ip, nodeID, count)
	}
	return nil
}

type crdtHarness struct {
	p        *persister
	stores   []*crdt.Store
	workers  []*crdt.Worker
	replicas int
}

func newCRDTHarness(p *persister, replicas int, publishInterval, gcInterval time.Duration) *crdtHarness {
	if replicas <= 0 {
		replicas = 4
	}
	stores := make([]*crdt.Store, replicas)
	nodeIDs := make([]string, replicas)
	for i := range stores {
		nodeIDs[i] = fmt.Sprintf("replica-%d", i)
		stores[i] = crdt.NewStore(nodeIDs[i], 16)
	}
	workers := make([]*crdt.Worker, replicas)
	for i, s := range stores {
		peers := make([]*crdt.Store, 0, replicas-1)
		for j, peer := range stores {
			if j != i {
				peers = append(peers, peer)
			}
		}
		pub := &fanoutPublisher{p: p, peers: peers}
		workers[i] = crdt.NewWorker(s, pub, publishInterval, gcInterval, 24*time.Hour)
	}
	return &crdtHarness{p: p, stores: stores, workers: workers, replicas: replicas}
}

// update picks a replica by hash for determinism, matching how a rendezvous-
// hashed load balancer would route a given source IP to one node.
func (c *crdtHarness) update(key string, delta int64) {
	r := int(fnv32(key)) % c.replicas
	d := delta
	if d < 0 {
		d = -d
	}
	c.stores[r].Increment(key, uint64(d))
}

func (c *crdtHarness) startBG() {
	for _, w := range c.workers {
		w.Start()
	}
}

func (c *crdtHarness) stopBG() {
	for _, w := range c.workers {
		w.Stop()
	}
}

// ---- Token Bucket (baseline) ----

type tokenBucket struct {
	p      *persister
	cap    float64
	rate   float64 // tokens per second
	mu     sync.Mutex
	tokens map[string]float64
	last   map[string]time.Time
}

func newTokenBucket(p *persister, keys []string, capacity int, rate float64) *tokenBucket {
	tb := &tokenBucket{p: p, cap: float64(capacity), rate: rate, tokens: make(map[string]float64, len(keys)), last: make(map[string]time.Time, len(keys))}
	now := time.Now()
	for _, k := range keys {
		tb.tokens[k] = float64(capacity)
		tb.last[k] = now
	}
	return tb
}

func (t *tokenBucket) update(key string, delta int64) {
	// Refill and consume/refund locally; simulate a read + a write to external store per op
	t.mu.Lock()
	now := time.Now()
	if prev, ok := t.last[key]; ok {
		refill := now.Sub(prev).Seconds() * t.rate
		if refill > 0 {
			t.tokens[key] += refill
			if t.tokens[key] > t.cap {
				t.tokens[key] = t.cap
			}
		}
	} else {
		// initialize on first touch
		t.tokens[key] = t.cap
	}
	t.last[key] = now
	if delta >= 0 {
		if t.tokens[key] >= 1 {
			t.tokens[key] -= 1
		}
	} else {
		// refund/add a token back (bounded by cap)
		t.tokens[key] += 1
		if t.tokens[key] > t.cap {
			t.tokens[key] = t.cap
		}
	}
	t.mu.Unlock()
	// Simulate one read + one write per logical operation
	t.p.write(0) // read
	t.p.write(1) // write
}
func (t *tokenBucket) startBG() {}
func (t *tokenBucket) stopBG()  {}

// ---- Leaky Bucket (baseline) ----

type leakyBucket struct {
	p        *persister
	rate     float64 // leak rate per second
	capacity float64
	mu       sync.Mutex
	level    map[string]float64
	last     map[string]time.Time
}

func newLeakyBucket(p *persister, keys []string, capacity int, rate float64) *leakyBucket {
	lb := &leakyBucket{p: p, rate: rate, capacity: float64(capacity), level: make(map[string]float64, len(keys)), last: make(map[string]time.Time, len(keys))}
	now := time.Now()
	for _, k := range keys {
		lb.level[k] = 0
		lb.last[k] = now
	}
	return lb
}

func (l *leakyBucket) update(key string, delta int64) {
	// Apply leak and enqueue/dequeue; simulate read + write per op
	l.mu.Lock()
	now := time.Now()
	prev := l.last[key]
	leaked := now.Sub(prev).Seconds() * l.rate
	if leaked > 0 {
		l.level[key] -= leaked
		if l.level[key] < 0 {
			l.level[key] = 0
		}
	}
	l.last[key] = now
	if delta >= 0 {
		// add one unit if capacity allows
		if l.level[key] < l.capacity {
			l.level[key] += 1
		}
	} else {
		// negative deltas reduce queued level
		l.level[key] -= 1
		if l.level[key] < 0 {
			l.level[key] = 0
		}
	}
	l.mu.Unlock()
	l.p.write(0) // read
	l.p.write(1) // write
}
func (l *leakyBucket) startBG() {}
func (l *leakyBucket) stopBG()  {}

// ---- Runner ----

func main() {
	var (
		variantStr = flag.String("variant", "scalar", "scalar|atomic|batch|crdt|token|leaky")
		opCount    = flag.Int("ops", 200_000, "total operations across all goroutines")
		workers    = flag.Int("goroutines", 32, "concurrent workers")
		keysN      = flag.Int("keys", 1, "number of hot keys")
		churnPct   = flag.Int("churn", 50, "percentage of negative ops [0..100]")
		seed       = flag.Int64("seed", 1, "PRNG seed")

		// Scalar lane (real dispatch.ScalarAccumulator/ScalarService)
		scalarShards    = flag.Int("scalar_shards", 8, "scalar lane accumulator shards")
		scalarOrderPow2 = flag.Int("scalar_order_pow2", 12, "scalar lane accumulator table size as power-of-two")
		scalarCountCap  = flag.Int("scalar_count_thresh", 64, "scalar lane per-shard flush count threshold")
		scalarTimeCap   = flag.Duration("scalar_time_cap", 10*time.Millisecond, "scalar lane per-shard time cap")
		scalarFlush     = flag.Duration("scalar_flush", 10*time.Millisecond, "scalar service flush interval")

		// Batching
		batchSize     = flag.Int("batch_size", 64, "batch size")
		batchInterval = flag.Duration("batch_interval", 10*time.Millisecond, "batch flush interval")

		// CRDT
		replicas    = flag.Int("replicas", 4, "CRDT replicas")
		mergePeriod = flag.Duration("merge_interval", 25*time.Millisecond, "CRDT merge interval")

		// Baselines (token/leaky)
		rate  = flag.Float64("rate", 10000, "rate tokens/sec for token/leaky baselines")
		burst = flag.Int("burst", 100, "capacity/burst for token/leaky baselines")

		// Persistence
		writeDelay = flag.Duration("write_delay", 0, "simulated delay per datastore call (e.g., 50us, 1ms)")

		// Harness
		pprofOn       = flag.Bool("pprof", false, "enable pprof on localhost:6060")
		sampleEvery   = flag.Int("sample_every", 1, "record latency every N ops (1=all)")
		maxLatSamples = flag.Int("max_latency_samples", 200000, "cap on stored latency samples to bound memory; downsample if exceeded")
		duration      = flag.Duration("duration", 0, "run for this duration instead of a fixed -ops (0 to disable)")
	)
	flag.Parse()

	if *pprofOn {
		go func() { _ = http.ListenAndServe("localhost:6060", nil) }()
	}

	v := variantType(strings.ToLower(*variantStr))
	if v != variantScalar && v != variantAtomic && v != variantBatch && v != variantCRDT && v != variantToken && v != variantLeaky {
		fmt.Println("-variant must be one of: scalar|atomic|batch|crdt|token|leaky")
		os.Exit(2)
	}

	keys := make([]string, *keysN)
	for i := 0; i < *keysN; i++ {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	p := newPersister(*writeDelay)

	var prod producer
	switch v {
	case variantAtomic:
		prod = newAtomic(p)
	case variantBatch:
		prod = newBatcher(p, *batchSize, *batchInterval)
	case variantCRDT:
		prod = newCRDTHarness(p, *replicas, *mergePeriod, 24*time.Hour)
	case variantToken:
		prod = newTokenBucket(p, keys, *burst, *rate)
	case variantLeaky:
		prod = newLeakyBucket(p, keys, *burst, *rate)
	case variantScalar:
		prod = newScalarHarness(p, *scalarShards, *scalarOrderPow2, *scalarCountCap, *scalarTimeCap, *scalarFlush)
	}

	prod.startBG()
	defer prod.stopBG()

	// Pre-generate ops to avoid per-op RNG and allocations
	m := &metrics{latencies: make([]time.Duration, 0, *opCount)}
	opsPerWorker := *opCount / *workers
	if *duration > 0 {
		// For duration-based runs, pre-generate a small fixed slice and cycle over it
		opsPerWorker = 8192
	}
	opsKeys := make([][]string, *workers)
	opsDelta := make([][]int64, *workers)
	for g := 0; g < *workers; g++ {
		rnd := rand.New(rand.NewPCG(uint64(*seed), uint64(g)+1))
		ks := make([]string, opsPerWorker)
		ds := make([]int64, opsPerWorker)
		for i := 0; i < opsPerWorker; i++ {
			ks[i] = keys[rnd.IntN(len(keys))]
			if rnd.IntN(100) < *churnPct {
				ds[i] = -1
			} else {
				ds[i] = 1
			}
		}
		opsKeys[g] = ks
		opsDelta[g] = ds
	}

	// Run workers
	var wg sync.WaitGroup
	wg.Add(*workers)
	start := time.Now()
	// Duration-based mode if -duration > 0
	durationMode := *duration > 0
	deadline := time.Time{}
	if durationMode {
		deadline = start.Add(*duration)
	}
	var opsDone atomic.Int64

	recordLatency := *maxLatSamples != 0

	latSlices := make([][]time.Duration, *workers)
	// Cap per-worker latency storage in duration mode using reservoir sampling
	capPerWorker := 0
	if recordLatency && *maxLatSamples > 0 {
		capPerWorker = *maxLatSamples / *workers
		if capPerWorker < 1 {
			capPerWorker = 1
		}
	}
	for g := 0; g < *workers; g++ {
		go func(id int) {
			defer wg.Done()
			ks := opsKeys[id]
			ds := opsDelta[id]
			// preallocate sampled latencies for this worker if recording is enabled
			sample := *sampleEvery
			if sample <= 0 {
				sample = 1
			}
			var loc []time.Duration
			if recordLatency {
				if durationMode && capPerWorker > 0 {
					loc = make([]time.Duration, 0, capPerWorker)
				} else {
					loc = make([]time.Duration, 0, (len(ks)+sample-1)/sample)
				}
			}
			// rng for reservoir sampling
			var rndLoc *rand.Rand
			if durationMode && recordLatency && capPerWorker > 0 {
				rndLoc = rand.New(rand.NewPCG(uint64(*seed), uint64(id)+12345))
			}
			totalSeen := 0
			if durationMode {
				// Run until deadline; cycle over pre-generated ops to avoid allocs
				for i := 0; ; i++ {
					if time.Now().After(deadline) {
						break
					}
					idx := i % len(ks)
					if recordLatency && (sample == 1 || (i%sample) == 0) {
						t0 := time.Now()
						prod.update(ks[idx], ds[idx])
						d := time.Since(t0)
						if capPerWorker > 0 {
							totalSeen++
							if totalSeen <= capPerWorker {
								loc = append(loc, d)
							} else {
								j := rndLoc.IntN(totalSeen)
								if j < capPerWorker {
									loc[j] = d
								}
							}
						} else {
							loc = append(loc, d)
						}
					} else {
						prod.update(ks[idx], ds[idx])
					}
					opsDone.Add(1)
				}
			} else {
				for i := 0; i < len(ks); i++ {
					if recordLatency && (sample == 1 || (i%sample) == 0) {
						t0 := time.Now()
						prod.update(ks[i], ds[i])
						loc = append(loc, time.Since(t0))
					} else {
						prod.update(ks[i], ds[i])
					}
					opsDone.Add(1)
				}
			}
			latSlices[id] = loc
		}(g)
	}
	wg.Wait()

	// Merge sampled latencies
	for i, ls := range latSlices {
		m.latencies = append(m.latencies, ls...)
		latSlices[i] = nil // free per-worker slice
	}
	// Downsample if exceeding cap to bound memory
	if *maxLatSamples > 0 && len(m.latencies) > *maxLatSamples {
		capN := *maxLatSamples
		reduced := make([]time.Duration, capN)
		step := float64(len(m.latencies)) / float64(capN)
		for j := 0; j < capN; j++ {
			idx := int(float64(j) * step)
			if idx >= len(m.latencies) {
				idx = len(m.latencies) - 1
			}
			reduced[j] = m.latencies[idx]
		}
		m.latencies = reduced
	}
	// Free pre-generated ops to reduce live memory footprint before stats
	opsKeys = nil
	opsDelta = nil

	runDur := time.Since(start)

	// allow background to catch up a tick
	time.Sleep(2 * time.Millisecond)

	// stats
	// Sort latencies once to compute quantiles without extra allocations
	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
	idx50 := (len(m.latencies) - 1) * 50 / 100
	idx95 := (len(m.latencies) - 1) * 95 / 100
	idx99 := (len(m.latencies) - 1) * 99 / 100
	p50 := time.Duration(0)
	p95 := time.Duration(0)
	p99 := time.Duration(0)
	if len(m.latencies) > 0 {
		p50 = m.latencies[idx50]
		p95 = m.latencies[idx95]
		p99 = m.latencies[idx99]
	}
	med := p50
	thr := 5 * med
	for _, d := range m.latencies {
		if d > thr {
			m.longOps++
		}
	}
	// build latency histogram (ns/us/ms buckets)
	hist := buildLatencyHistogram(m.latencies)

	// Release latency samples before taking memory snapshot to reduce live Alloc
	m.latencies = nil
	// Encourage a GC so snapshot reflects released buffers
	runtime.GC()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	actualOps := opsDone.Load()
	fmt.Printf("Variant: %s  Ops: %d  Goroutines: %d  Keys: %d  Churn: %d%%\n", v, actualOps, *workers, *keysN, *churnPct)
	fmt.Printf("Duration: %s  Ops/sec: %s\n", runDur.Round(time.Millisecond), humanRate(float64(actualOps)/runDur.Seconds()))
	// Print latencies with adaptive precision to avoid clamped zeros
	fmt.Printf("Latency p50: %sµs  p95: %sµs  p99: %sµs\n", formatMicros(med), formatMicros(p95), formatMicros(p99))
	fmt.Println("Latency histogram (non-zero buckets):")
	for _, b := range hist {
		fmt.Printf("  %s: %d\n", b.label, b.count)
	}
	fmt.Printf("Writes: logical=%s (%s/sec), dbCalls=%s (%s/sec)\n",
		humanInt(p.logicalWrites.Load()), humanRate(float64(p.logicalWrites.Load())/runDur.Seconds()),
		humanInt(p.dbCalls.Load()), humanRate(float64(p.dbCalls.Load())/runDur.Seconds()))
	fmt.Printf("Memory: Alloc=%s  TotalAlloc=%s  Sys=%s  NumGC=%d\n",
		humanBytes(ms.Alloc), humanBytes(ms.TotalAlloc), humanBytes(ms.Sys), ms.NumGC)
	fmt.Printf("Contention (long ops >5× median): %d\n", m.longOps)

	// Machine-readable one-line summary for scripts
	fmt.Printf("Summary: variant=%s ops=%d duration_ns=%d goroutines=%d keys=%d churn_pct=%d p50_ns=%d p95_ns=%d p99_ns=%d logical_writes=%d db_calls=%d write_delay_ns=%d\n",
		v, actualOps, runDur.Nanoseconds(), *workers, *keysN, *churnPct, int64(med), int64(p95), int64(p99), p.logicalWrites.Load(), p.dbCalls.Load(), int64(p.writeDelay))

	// Scalar lane coalescing metrics
	if v == variantScalar {
		if sh, ok := prod.(*scalarHarness); ok {
			batches := sh.sink.batchesOut.Load()
			sum := sh.sink.sumAbsDelta.Load()
			avg := int64(0)
			if batches > 0 {
				avg = sum / batches
			}
			fmt.Printf("Scalar lane: batches_out=%d  sum_delta=%s  avg_delta_per_batch=%s\n",
				batches, humanInt(sum), humanInt(avg))
		}
	}
}

// ---- Helpers ----

type histBucket struct {
	label  string
	lo, hi time.Duration
	count  int64
}

func buildLatencyHistogram(durations []time.Duration) []histBucket {
	b := []histBucket{
		{"<100ns", 0, 100 * time.Nanosecond, 0},
		{"100–200ns", 100 * time.Nanosecond, 200 * time.Nanosecond, 0},
		{"200–500ns", 200 * time.Nanosecond, 500 * time.Nanosecond, 0},
		{"0.5–1µs", 500 * time.Nanosecond, 1 * time.Microsecond, 0},
		{"1–2µs", 1 * time.Microsecond, 2 * time.Microsecond, 0},
		{"2–5µs", 2 * time.Microsecond, 5 * time.Microsecond, 0},
		{"5–10µs", 5 * time.Microsecond, 10 * time.Microsecond, 0},
		{"10–20µs", 10 * time.Microsecond, 20 * time.Microsecond, 0},
		{"20–50µs", 20 * time.Microsecond, 50 * time.Microsecond, 0},
		{"50–100µs", 50 * time.Microsecond, 100 * time.Microsecond, 0},
		{"0.1–0.2ms", 100 * time.Microsecond, 200 * time.Microsecond, 0},
		{"0.2–0.5ms", 200 * time.Microsecond, 500 * time.Microsecond, 0},
		{"0.5–1ms", 500 * time.Microsecond, 1 * time.Millisecond, 0},
		{"1–2ms", 1 * time.Millisecond, 2 * time.Millisecond, 0},
		{"2–5ms", 2 * time.Millisecond, 5 * time.Millisecond, 0},
		{"5–10ms", 5 * time.Millisecond, 10 * time.Millisecond, 0},
		{">=10ms", 10 * time.Millisecond, time.Duration(1<<63 - 1), 0},
	}
	for _, d := range durations {
		for i := range b {
			if d >= b[i].lo && d < b[i].hi {
				b[i].count++
				break
			}
		}
	}
	// Return only non-zero buckets
	out := make([]histBucket, 0, len(b))
	for _, x := range b {
		if x.count > 0 {
			out = append(out, x)
		}
	}
	return out
}

func percentiles(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	copyArr := make([]time.Duration, len(durations))
	copy(copyArr, durations)
	sort.Slice(copyArr, func(i, j int) bool { return copyArr[i] < copyArr[j] })
	idx := (len(copyArr) - 1) * p / 100
	return copyArr[idx]
}

// formatMicros returns a string with microseconds value using adaptive precision
// to avoid clamped zeros for sub-microsecond durations.
func formatMicros(d time.Duration) string {
	us := float64(d) / 1e3 // d is ns
	if us < 1 {
		return fmt.Sprintf("%.3f", us)
	}
	if us < 100 {
		return fmt.Sprintf("%.1f", us)
	}
	return fmt.Sprintf("%.0f", us)
}

func humanInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := ""
	if strings.HasPrefix(s, "-") {
		neg = "-"
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i != 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return neg + string(out)
}

func humanRate(x float64) string {
	if x >= 1_000_000 {
		return fmt.Sprintf("%.1fM", x/1_000_000)
	}
	if x >= 1_000 {
		return fmt.Sprintf("%.1fk", x/1_000)
	}
	return fmt.Sprintf("%.0f", x)
}

func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	d := float64(b)
	units := []string{"KiB", "MiB", "GiB", "TiB"}
	i := 0
	for d >= unit && i < len(units)-1 {
		d /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", d, units[i])
}

// simple FNV-1a 32-bit for stable hashing
func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
