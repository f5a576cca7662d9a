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

import (
	"testing"
	"time"
)

func TestScalarAccumulatorCoalescesSameIP(t *testing.T) {
	acc := NewScalarAccumulator(1, 4, 1024, time.Hour)
	acc.Ingest(Event{SourceIP: "203.0.113.4", Delta: 3, SeqEnd: 1})
	acc.Ingest(Event{SourceIP: "203.0.113.4", Delta: 4, SeqEnd: 2})

	batches := acc.FlushAll()
	if len(batches) != 1 {
		t.Fatalf("len(batches) = %d, want 1", len(batches))
	}
	if batches[0].Delta != 7 || batches[0].SeqEnd != 2 {
		t.Fatalf("batch = %+v, want Delta=7 SeqEnd=2", batches[0])
	}
}

func TestScalarAccumulatorFlushAllClearsState(t *testing.T) {
	acc := NewScalarAccumulator(1, 4, 1024, time.Hour)
	acc.Ingest(Event{SourceIP: "203.0.113.4", Delta: 1, SeqEnd: 1})
	acc.FlushAll()

	if batches := acc.FlushAll(); len(batches) != 0 {
		t.Fatalf("second FlushAll returned %d batches, want 0", len(batches))
	}
}

func TestScalarAccumulatorFlushDueRespectsCountThreshold(t *testing.T) {
	acc := NewScalarAccumulator(1, 4, 2, time.Hour)
	acc.Ingest(Event{SourceIP: "203.0.113.4", Delta: 1, SeqEnd: 1})

	if batches := acc.FlushDue(); len(batches) != 0 {
		t.Fatalf("FlushDue before threshold returned %d batches, want 0", len(batches))
	}

	acc.Ingest(Event{SourceIP: "198.51.100.9", Delta: 1, SeqEnd: 1})
	if batches := acc.FlushDue(); len(batches) != 2 {
		t.Fatalf("FlushDue at threshold returned %d batches, want 2", len(batches))
	}
}

func TestScalarAccumulatorFlushDueRespectsTimeCap(t *testing.T) {
	acc := NewScalarAccumulator(1, 4, 1024, time.Millisecond)
	acc.Ingest(Event{SourceIP: "203.0.113.4", Delta: 1, SeqEnd: 1})
	time.Sleep(5 * time.Millisecond)

	if batches := acc.FlushDue(); len(batches) != 1 {
		t.Fatalf("FlushDue after time cap returned %d batches, want 1", len(batches))
	}
}

func TestScalarAccumulatorDistributesAcrossShards(t *testing.T) {
	acc := NewScalarAccumulator(4, 4, 1024, time.Hour)
	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4"}
	for _, ip := range ips {
		acc.Ingest(Event{SourceIP: ip, Delta: 1, SeqEnd: 1})
	}
	batches := acc.FlushAll()
	if len(batches) != len(ips) {
		t.Fatalf("len(batches) = %d, want %d", len(batches), len(ips))
	}
}
