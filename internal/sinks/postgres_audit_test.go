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
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"secbeat/internal/dispatch"
)

// Minimal fake SQL driver to exercise PostgresAuditSink's Exec and
// transaction paths without a real database connection.

type fakeAuditDB struct {
	execs         []string
	failBegin     error
	failCommit    error
	failExecAt    map[int]error
	commitCount   int
	rollbackCount int
}

type fakeAuditDriver struct{}
type fakeAuditConn struct{ db *fakeAuditDB }
type fakeAuditTx struct {
	db     *fakeAuditDB
	closed bool
}
type fakeAuditResult int

func (fakeAuditResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeAuditResult) RowsAffected() (int64, error) { return 1, nil }

func (fakeAuditDriver) Open(name string) (driver.Conn, error) {
	return &fakeAuditConn{db: testFakeAuditDB}, nil
}

func (c *fakeAuditConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not supported")
}
func (c *fakeAuditConn) Close() error { return nil }
func (c *fakeAuditConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}
func (c *fakeAuditConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.db.failBegin != nil {
		return nil, c.db.failBegin
	}
	return &fakeAuditTx{db: c.db}, nil
}
func (c *fakeAuditConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.execs = append(c.db.execs, query)
	idx := len(c.db.execs)
	if c.db.failExecAt != nil {
		if err, ok := c.db.failExecAt[idx]; ok {
			return nil, err
		}
	}
	return fakeAuditResult(1), nil
}

func (t *fakeAuditTx) Commit() error {
	if t.closed {
		return errors.New("already closed")
	}
	t.db.commitCount++
	t.closed = true
	if t.db.failCommit != nil {
		return t.db.failCommit
	}
	return nil
}
func (t *fakeAuditTx) Rollback() error {
	if t.closed {
		return nil
	}
	t.db.rollbackCount++
	t.closed = true
	return nil
}

var testFakeAuditDB *fakeAuditDB

func init() {
	sql.Register("fakeauditsql", fakeAuditDriver{})
}

func newAuditSQLDBWithFake(db *fakeAuditDB) *sql.DB {
	testFakeAuditDB = db
	d, _ := sql.Open("fakeauditsql", "")
	return d
}

func TestPostgresAuditSinkCommitBatchEmpty(t *testing.T) {
	db := newAuditSQLDBWithFake(&fakeAuditDB{})
	s := NewPostgresAuditSink(db)
	if err := s.CommitBatch(context.Background(), nil); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestPostgresAuditSinkCommitEventRequiresSourceIP(t *testing.T) {
	db := newAuditSQLDBWithFake(&fakeAuditDB{})
	s := NewPostgresAuditSink(db)
	err := s.CommitEvent(context.Background(), dispatch.Event{Kind: dispatch.KindBlockVerdict})
	if err == nil || err.Error() != "Event.SourceIP must be set" {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestPostgresAuditSinkCommitBatchInsertsAndCommits(t *testing.T) {
	f := &fakeAuditDB{}
	db := newAuditSQLDBWithFake(f)
	s := NewPostgresAuditSink(db)
	entries := []dispatch.Event{
		{Kind: dispatch.KindBlocklistInsert, SourceIP: "203.0.113.4", SeqEnd: 1, Reason: "waf_block"},
		{Kind: dispatch.KindBlockVerdict, SourceIP: "203.0.113.4", SeqEnd: 2},
	}
	if err := s.CommitBatch(context.Background(), entries); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if f.commitCount != 1 || f.rollbackCount != 0 {
		t.Fatalf("commit/rollback mismatch: %d/%d", f.commitCount, f.rollbackCount)
	}
	if len(f.execs) != 2 {
		t.Fatalf("expected 2 execs, got %d", len(f.execs))
	}
	for _, q := range f.execs {
		if !strings.Contains(q, "INSERT INTO audit_events") {
			t.Fatalf("unexpected query: %q", q)
		}
	}
}

func TestPostgresAuditSinkCommitBatchExecErrorRollsBack(t *testing.T) {
	f := &fakeAuditDB{failExecAt: map[int]error{1: errors.New("boom")}}
	db := newAuditSQLDBWithFake(f)
	s := NewPostgresAuditSink(db)
	err := s.CommitBatch(context.Background(), []dispatch.Event{{Kind: dispatch.KindBlockVerdict, SourceIP: "203.0.113.4", SeqEnd: 1}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.rollbackCount != 1 || f.commitCount != 0 {
		t.Fatalf("expected rollback only, got c=%d r=%d", f.commitCount, f.rollbackCount)
	}
}

func TestPostgresAuditSinkCommitBatchRejectsMissingSourceIP(t *testing.T) {
	f := &fakeAuditDB{}
	db := newAuditSQLDBWithFake(f)
	s := NewPostgresAuditSink(db)
	err := s.CommitBatch(context.Background(), []dispatch.Event{{Kind: dispatch.KindBlockVerdict, SeqEnd: 1}})
	if err == nil || err.Error() != "Event.SourceIP must be set" {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.rollbackCount != 1 || f.commitCount != 0 {
		t.Fatalf("expected rollback only, got c=%d r=%d", f.commitCount, f.rollbackCount)
	}
}

func TestPostgresAuditSinkOnAuditDoesNotPanicOnError(t *testing.T) {
	f := &fakeAuditDB{failExecAt: map[int]error{1: errors.New("boom")}}
	db := newAuditSQLDBWithFake(f)
	s := NewPostgresAuditSink(db)
	s.OnAudit(dispatch.Event{Kind: dispatch.KindBlockVerdict, SourceIP: "203.0.113.4", SeqEnd: 1})
}
