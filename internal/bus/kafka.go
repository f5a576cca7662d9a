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

	"github.com/IBM/sarama"
)

// KafkaProducer and KafkaConsumer are the minimal surfaces KafkaBus needs.
// Kept as interfaces so KafkaBus depends only on these two methods and
// tests can substitute fakes; SaramaProducer/SaramaConsumer below are the
// concrete adapters over
// github.com/IBM/sarama, for deployments that already run Kafka as their
// fleet-wide bus.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

type KafkaConsumer interface {
	// Consume delivers every message on topic to handler until ctx is
	// cancelled. Implementations own their own partition/offset management.
	Consume(ctx context.Context, topic string, handler func(key, value []byte)) error
}

// KafkaBus publishes deltas and reload commands as Kafka messages, keyed by
// the affected IP (deltas) or module name (reload commands) so that a single
// partition sees in-order updates for one key.
type KafkaBus struct {
	producer    KafkaProducer
	consumer    KafkaConsumer
	deltaTopic  string
	reloadTopic string
}

// NewKafkaBus wires a KafkaBus over the given topic prefix; deltas use
// "<prefix>.state.update" and reload commands use "<prefix>.wasm.reload".
func NewKafkaBus(producer KafkaProducer, consumer KafkaConsumer, topicPrefix string) *KafkaBus {
	if topicPrefix == "" {
		topicPrefix = "secbeat"
	}
	return &KafkaBus{
		producer:    producer,
		consumer:    consumer,
		deltaTopic:  topicPrefix + ".state.update",
		reloadTopic: topicPrefix + ".wasm.reload",
	}
}

func (b *KafkaBus) PublishDelta(ctx context.Context, nodeID, ip string, count uint64) error {
	d := Delta{NodeID: nodeID, IP: ip, Count: count, Timestamp: time.Now().UnixNano()}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	return b.producer.Produce(ctx, b.deltaTopic, []byte(ip), payload)
}

func (b *KafkaBus) SubscribeDeltas(ctx context.Context) (<-chan Delta, error) {
	out := make(chan Delta, 256)
	go func() {
		defer close(out)
		_ = b.consumer.Consume(ctx, b.deltaTopic, func(_, value []byte) {
			var d Delta
			if err := json.Unmarshal(value, &d); err != nil {
				return
			}
			select {
			case out <- d:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

func (b *KafkaBus) PublishReload(ctx context.Context, cmd ReloadCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal reload command: %w", err)
	}
	return b.producer.Produce(ctx, b.reloadTopic, []byte(cmd.ModuleName), payload)
}

func (b *KafkaBus) SubscribeReloads(ctx context.Context) (<-chan ReloadCommand, error) {
	out := make(chan ReloadCommand, 16)
	go func() {
		defer close(out)
		_ = b.consumer.Consume(ctx, b.reloadTopic, func(_, value []byte) {
			var cmd ReloadCommand
			if err := json.Unmarshal(value, &cmd); err != nil {
				return
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

func (b *KafkaBus) Close() error { return nil }

// SaramaProducer adapts a sarama.SyncProducer (idempotent producer,
// acks=all, for reliable delta delivery) to the KafkaProducer interface.
type SaramaProducer struct {
	Producer sarama.SyncProducer
}

func (p SaramaProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, _, err := p.Producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

// NewSaramaSyncProducer builds a sarama.SyncProducer configured for
// idempotent, acks=all production — the concrete client backing the
// KafkaProducer interface above.
func NewSaramaSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	return sarama.NewSyncProducer(brokers, cfg)
}

// SaramaConsumer adapts a sarama.Consumer (simple partition consumer, not a
// consumer group) to the KafkaConsumer interface. It consumes partition 0
// from the newest offset; a deployment that needs partition fan-out or
// rebalancing would swap this for sarama.ConsumerGroup without changing
// KafkaBus.
type SaramaConsumer struct {
	Consumer sarama.Consumer
}

func (c SaramaConsumer) Consume(ctx context.Context, topic string, handler func(key, value []byte)) error {
	pc, err := c.Consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("consume partition %s/0: %w", topic, err)
	}
	defer pc.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			handler(msg.Key, msg.Value)
		case err := <-pc.Errors():
			if err != nil {
				return err
			}
		}
	}
}
