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

package sinks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secbeat/internal/dispatch"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS audit_events (
//   source_ip TEXT NOT NULL,
//   seq_end   BIGINT NOT NULL,
//   kind      SMALLINT NOT NULL,
//   node_id   TEXT,
//   delta     BIGINT,
//   reason    TEXT,
//   ts        TIMESTAMPTZ NOT NULL DEFAULT now(),
//   PRIMARY KEY (source_ip, seq_end)
// );
//
// PRIMARY KEY(source_ip, seq_end) makes re-delivery of an already-applied
// event a no-op: SeqEnd is monotonic per source IP, so the insert below is
// naturally idempotent under ON CONFLICT DO NOTHING.

// PostgresAuditSink persists Vector-lane events to a Postgres table,
// queryable by source IP instead of a flat JSONL file. It satisfies
// dispatch.AuditSink.
type PostgresAuditSink struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresAuditSink wraps an already-open *sql.DB. The caller owns the
// connection pool's lifetime.
func NewPostgresAuditSink(db *sql.DB) *PostgresAuditSink {
	return &PostgresAuditSink{db: db, defaultTimeout: 10 * time.Second}
}

// OnAudit persists ev. Errors are not returned to the caller (OnAudit must
// satisfy dispatch.AuditSink's fire-and-forget signature); a failed insert
// is logged by CommitEvent's caller when used directly instead.
func (s *PostgresAuditSink) OnAudit(ev dispatch.Event) {
	_ = s.CommitEvent(context.Background(), ev)
}

// CommitEvent inserts ev idempotently, keyed on (SourceIP, SeqEnd). Safe to
// call more than once with the same event.
func (s *PostgresAuditSink) CommitEvent(ctx context.Context, ev dispatch.Event) error {
	if ev.SourceIP == "" {
		return errors.New("Event.SourceIP must be set")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && s.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaultTimeout)
		defer cancel()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events(source_ip, seq_end, kind, node_id, delta, reason)
		   VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (source_ip, seq_end) DO NOTHING`,
		ev.SourceIP, ev.SeqEnd, int(ev.Kind), ev.NodeID, ev.Delta, ev.Reason)
	if err != nil {
		return fmt.Errorf("insert audit_events(%s,%d): %w", ev.SourceIP, ev.SeqEnd, err)
	}
	return nil
}

// CommitBatch applies entries within a single transaction, each insert
// remaining idempotent on its own (SourceIP, SeqEnd) key.
func (s *PostgresAuditSink) CommitBatch(ctx context.Context, entries []dispatch.Event) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && s.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaultTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range entries {
		if ev.SourceIP == "" {
			return errors.New("Event.SourceIP must be set")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_events(source_ip, seq_end, kind, node_id, delta, reason)
			   VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (source_ip, seq_end) DO NOTHING`,
			ev.SourceIP, ev.SeqEnd, int(ev.Kind), ev.NodeID, ev.Delta, ev.Reason); err != nil {
			return fmt.Errorf("insert audit_events(%s,%d): %w", ev.SourceIP, ev.SeqEnd, err)
		}
	}

	return tx.Commit()
}
