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

// RateBatch is one coalesced Scalar-lane flush result: the net increment
// observed for one source IP since the last flush.
type RateBatch struct {
	SourceIP string
	Delta    uint64
	SeqEnd   uint64
}

// shard is a single-writer, open-addressed accumulator table for one slice
// of the source-IP keyspace. Only ever touched from the Scalar service's
// own goroutine, so no locking is needed internally.
type shard struct {
	keys    []uint64 // 0 means empty
	ips     []string
	sums    []uint64
	seqEnds []uint64
	used    int
	mask    uint64

	countThreshold int
	timeCap        time.Duration
	lastFlush      time.Time
}

func newShard(orderPow2 uint, countThreshold int, timeCap time.Duration) *shard {
	n := 1 << orderPow2
	return &shard{
		keys: make([]uint64, n), ips: make([]string, n),
		sums: make([]uint64, n), seqEnds: make([]uint64, n),
		mask: uint64(n - 1), countThreshold: countThreshold, timeCap: timeCap,
		lastFlush: time.Now(),
	}
}

func (s *shard) probe(k uint64) int {
	i := int(k & s.mask)
	for {
		kk := s.keys[i]
		if kk == 0 || kk == k {
			return i
		}
		i = (i + 1) & int(s.mask)
	}
}

func (s *shard) ingest(ev Event) {
	k := keyHash(ev.SourceIP)
	if k == 0 {
		k = 1 // 0 is the empty-slot sentinel
	}
	i := s.probe(k)
	if s.keys[i] == 0 {
		s.keys[i] = k
		s.ips[i] = ev.SourceIP
		s.used++
	}
	s.sums[i] += ev.Delta
	if ev.SeqEnd > s.seqEnds[i] {
		s.seqEnds[i] = ev.SeqEnd
	}
}

func (s *shard) dueForFlush() bool {
	return s.used >= s.countThreshold || time.Since(s.lastFlush) >= s.timeCap
}

func (s *shard) flush(out *[]RateBatch) {
	if s.used == 0 {
		return
	}
	for i := range s.keys {
		if s.keys[i] == 0 {
			continue
		}
		*out = append(*out, RateBatch{SourceIP: s.ips[i], Delta: s.sums[i], SeqEnd: s.seqEnds[i]})
		s.keys[i], s.ips[i], s.sums[i], s.seqEnds[i] = 0, "", 0, 0
	}
	s.used = 0
	s.lastFlush = time.Now()
}

// ScalarAccumulator holds independent shards so a hot IP hashes to one lane
// without serializing against every other IP's increments.
type ScalarAccumulator struct {
	shards []*shard
}

// NewScalarAccumulator builds an accumulator with shardCount independent
// open-addressed tables, each sized 2^orderPow2 and flushed once it holds
// countThreshold distinct IPs or timeCap has elapsed since its last flush.
func NewScalarAccumulator(shardCount, orderPow2, countThreshold int, timeCap time.Duration) *ScalarAccumulator {
	if shardCount <= 0 {
		shardCount = 1
	}
	if orderPow2 <= 0 {
		orderPow2 = 8
	}
	a := &ScalarAccumulator{shards: make([]*shard, shardCount)}
	for i := range a.shards {
		a.shards[i] = newShard(uint(orderPow2), countThreshold, timeCap)
	}
	return a
}

func (a *ScalarAccumulator) shardFor(ip string) *shard {
	return a.shards[keyHash(ip)%uint64(len(a.shards))]
}

// Ingest merges ev's delta into the shard owning its source IP.
func (a *ScalarAccumulator) Ingest(ev Event) {
	a.shardFor(ev.SourceIP).ingest(ev)
}

// FlushDue drains every shard that has crossed its count or time threshold.
func (a *ScalarAccumulator) FlushDue() []RateBatch {
	var out []RateBatch
	for _, s := range a.shards {
		if s.dueForFlush() {
			s.flush(&out)
		}
	}
	return out
}

// FlushAll drains every shard unconditionally, used on shutdown.
func (a *ScalarAccumulator) FlushAll() []RateBatch {
	var out []RateBatch
	for _, s := range a.shards {
		s.flush(&out)
	}
	return out
}
