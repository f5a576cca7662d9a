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

package bus

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TestRedisBusDeltaRoundTrip requires a Redis at 127.0.0.1:6379 and is
// skipped otherwise.
func TestRedisBusDeltaRoundTrip(t *testing.T) {
	probe := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer probe.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := probe.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable on 127.0.0.1:6379: %v", err)
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	b := NewRedisBus("127.0.0.1:6379")
	defer b.Close()

	deltas, err := b.SubscribeDeltas(subCtx)
	if err != nil {
		t.Fatalf("SubscribeDeltas: %v", err)
	}

	// go-redis subscribes asynchronously under the hood too, but Receive()
	// already blocked until the SUBSCRIBE ack, so publishing now is safe.
	if err := b.PublishDelta(context.Background(), "node-a", "203.0.113.9", 42); err != nil {
		t.Fatalf("PublishDelta: %v", err)
	}

	select {
	case d := <-deltas:
		if d.NodeID != "node-a" || d.IP != "203.0.113.9" || d.Count != 42 {
			t.Fatalf("unexpected delta: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published delta")
	}
}

func TestRedisBusReloadRoundTrip(t *testing.T) {
	probe := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer probe.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := probe.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable on 127.0.0.1:6379: %v", err)
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	b := NewRedisBus("127.0.0.1:6379")
	defer b.Close()

	reloads, err := b.SubscribeReloads(subCtx)
	if err != nil {
		t.Fatalf("SubscribeReloads: %v", err)
	}

	cmd := ReloadCommand{ModuleName: "waf-core", Rollback: false, IssuedBy: "test-operator"}
	if err := b.PublishReload(context.Background(), cmd); err != nil {
		t.Fatalf("PublishReload: %v", err)
	}

	select {
	case got := <-reloads:
		if got.ModuleName != cmd.ModuleName || got.IssuedBy != cmd.IssuedBy {
			t.Fatalf("unexpected reload command: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published reload command")
	}
}
