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

// Package audit provides an optional persistence trail for completed and
// failed delivery events, and an optional distributed advisory lock guarding
// the single-instance guarantee across hosts sharing one Redis.
//
// Both capabilities are expressed the way the Design Notes describe
// re-architecting defensive, dynamically-loaded optional features: a small
// interface the Supervisor depends on, with a no-op default, and a richer
// implementation plugged in at startup only when its prerequisites (a
// reachable Postgres/Redis) are present. Neither capability is required by
// any invariant in the core spec -- they exist purely to let a deployment
// that already runs Postgres/Redis get a durable record and a cross-host
// guard for free.
package audit

import (
	"context"
	"time"

	"autoresume/internal/queue"
)

// Sink records terminal event outcomes somewhere durable outside the queue
// document itself (which is pruned on a retention schedule).
type Sink interface {
	Record(ctx context.Context, ev queue.RateLimitEvent, tierUsed string) error
}

// NoopSink is the default: it discards every record. Used whenever no
// Postgres DSN is configured.
type NoopSink struct{}

// Record implements Sink by doing nothing.
func (NoopSink) Record(ctx context.Context, ev queue.RateLimitEvent, tierUsed string) error {
	return nil
}

// Lock is a distributed advisory lock used to extend the single-instance
// guarantee (§4.9) across hosts that might race to start a supervisor
// against the same queue/config, when they share a Redis instance (e.g. a
// roaming dev environment synced across machines).
type Lock interface {
	// TryAcquire attempts to hold the lock for ttl, returning held=false
	// without error if another holder already has it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (held bool, err error)
	// Release gives up a held lock. Safe to call even if never acquired.
	Release(ctx context.Context, key string) error
}

// NoopLock always grants the lock locally -- correct behavior when no
// Redis is configured, since the PID-file guard is already sufficient on a
// single host.
type NoopLock struct{}

// TryAcquire implements Lock by always succeeding.
func (NoopLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

// Release implements Lock by doing nothing.
func (NoopLock) Release(ctx context.Context, key string) error { return nil }
