// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"autoresume/internal/queue"
)

// PostgresSink records completed/failed events to a Postgres table, using
// the same idempotent-insert shape the teacher's persistence layer uses for
// applied commits: an ON CONFLICT DO NOTHING insert keyed by event id, so a
// retried Record call (e.g. after a supervisor crash mid-write) never
// double-counts.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS resume_events (
//	  id TEXT PRIMARY KEY,
//	  reset_time TIMESTAMPTZ NOT NULL,
//	  status TEXT NOT NULL,
//	  tier_used TEXT,
//	  completed_at TIMESTAMPTZ,
//	  recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresSink struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// OpenPostgresSink opens a connection pool against dsn using the pgx
// stdlib driver.
func OpenPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	return &PostgresSink{db: db, defaultTimeout: 10 * time.Second}, nil
}

// Record implements Sink.
func (p *PostgresSink) Record(ctx context.Context, ev queue.RateLimitEvent, tierUsed string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("audit: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tier interface{}
	if tierUsed != "" {
		tier = tierUsed
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resume_events (id, reset_time, status, tier_used, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.ResetTime, string(ev.Status), tier, ev.CompletedAt); err != nil {
		return fmt.Errorf("audit: insert resume_events(%s): %w", ev.ID, err)
	}

	return tx.Commit()
}

// Close releases the underlying connection pool.
func (p *PostgresSink) Close() error { return p.db.Close() }
