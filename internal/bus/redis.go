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
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBus publishes and subscribes to both subjects over a single
// github.com/redis/go-redis/v9 client, using PUBLISH/SUBSCRIBE, Redis's
// native pub/sub primitive.
//
// No idempotency marker key is needed: a duplicate or replayed Delta is a
// safe no-op once merged into a GCounter (Set only ever moves a slot
// forward), so RedisBus stays a thin transport.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus builds a bus whose client targets addr. The client connects
// lazily, on first publish or subscribe, so an unreachable addr is not
// reported here.
func NewRedisBus(addr string) *RedisBus {
	return &RedisBus{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (b *RedisBus) PublishDelta(ctx context.Context, nodeID, ip string, count uint64) error {
	d := Delta{NodeID: nodeID, IP: ip, Count: count, Timestamp: time.Now().UnixNano()}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	return b.client.Publish(ctx, subjectStateUpdate, payload).Err()
}

func (b *RedisBus) SubscribeDeltas(ctx context.Context) (<-chan Delta, error) {
	sub := b.client.Subscribe(ctx, subjectStateUpdate)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subjectStateUpdate, err)
	}
	out := make(chan Delta, 256)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var d Delta
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					continue // malformed message from a misbehaving peer; drop and keep going
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) PublishReload(ctx context.Context, cmd ReloadCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal reload command: %w", err)
	}
	return b.client.Publish(ctx, subjectWasmReload, payload).Err()
}

func (b *RedisBus) SubscribeReloads(ctx context.Context) (<-chan ReloadCommand, error) {
	sub := b.client.Subscribe(ctx, subjectWasmReload)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subjectWasmReload, err)
	}
	out := make(chan ReloadCommand, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var cmd ReloadCommand
				if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
					continue
				}
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
