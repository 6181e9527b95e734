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

package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"autoresume/internal/queue"
)

type fakeTier struct {
	name      string
	available bool
	sendErr   error
	sendCount int
	mu        sync.Mutex
}

func (t *fakeTier) Name() string { return t.name }
func (t *fakeTier) Available(ctx context.Context, target Target) bool { return t.available }
func (t *fakeTier) Send(ctx context.Context, target Target, prompt string) error {
	t.mu.Lock()
	t.sendCount++
	t.mu.Unlock()
	return t.sendErr
}

type scriptedVerifier struct {
	mu      sync.Mutex
	results []bool // consumed in order, repeats last entry once exhausted
	calls   int
}

func (v *scriptedVerifier) Verify(ctx context.Context, target Target, sentAt time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.calls
	if idx >= len(v.results) {
		idx = len(v.results) - 1
	}
	v.calls++
	return v.results[idx], nil
}

func TestDeliver_FirstTierSucceeds(t *testing.T) {
	tmux := &fakeTier{name: "tmux", available: true}
	pty := &fakeTier{name: "pty", available: true}
	verifier := &scriptedVerifier{results: []bool{true}}

	o := New([]Tier{tmux, pty}, verifier, Config{ResumePrompt: "continue", MaxRetries: 2, RetryBackoff: []time.Duration{time.Millisecond}})
	result := o.Deliver(context.Background(), queue.RateLimitEvent{})

	if !result.Success || result.TierUsed != "tmux" {
		t.Fatalf("expected success via tmux, got %+v", result)
	}
	if pty.sendCount != 0 {
		t.Fatalf("expected pty never attempted when tmux succeeds, got %d sends", pty.sendCount)
	}
}

func TestDeliver_FallsThroughToSecondTier(t *testing.T) {
	tmux := &fakeTier{name: "tmux", available: true}
	pty := &fakeTier{name: "pty", available: true}
	verifier := &scriptedVerifier{results: []bool{false, true}}

	o := New([]Tier{tmux, pty}, verifier, Config{ResumePrompt: "continue", MaxRetries: 2, RetryBackoff: []time.Duration{time.Millisecond}})
	result := o.Deliver(context.Background(), queue.RateLimitEvent{})

	if !result.Success || result.TierUsed != "pty" {
		t.Fatalf("expected success via pty after tmux fails verification, got %+v", result)
	}
	if len(result.TiersAttempted) != 2 || result.TiersAttempted[0] != "tmux" || result.TiersAttempted[1] != "pty" {
		t.Fatalf("expected tiers_attempted [tmux pty], got %v", result.TiersAttempted)
	}
}

func TestDeliver_UnavailableTierSkippedWithoutAttempt(t *testing.T) {
	tmux := &fakeTier{name: "tmux", available: false}
	pty := &fakeTier{name: "pty", available: true}
	verifier := &scriptedVerifier{results: []bool{true}}

	o := New([]Tier{tmux, pty}, verifier, Config{ResumePrompt: "continue", MaxRetries: 1, RetryBackoff: []time.Duration{time.Millisecond}})
	result := o.Deliver(context.Background(), queue.RateLimitEvent{})

	if !result.Success || result.TierUsed != "pty" {
		t.Fatalf("expected pty to succeed, got %+v", result)
	}
	if tmux.sendCount != 0 {
		t.Fatalf("expected unavailable tier never sent, got %d", tmux.sendCount)
	}
	for _, name := range result.TiersAttempted {
		if name == "tmux" {
			t.Fatal("unavailable tier must not appear in tiers_attempted")
		}
	}
}

func TestDeliver_AllTiersExhaustedAfterRetries(t *testing.T) {
	tmux := &fakeTier{name: "tmux", available: true}
	verifier := &scriptedVerifier{results: []bool{false}}

	o := New([]Tier{tmux}, verifier, Config{ResumePrompt: "continue", MaxRetries: 2, RetryBackoff: []time.Duration{time.Millisecond}})
	result := o.Deliver(context.Background(), queue.RateLimitEvent{})

	if result.Success {
		t.Fatal("expected exhausted retries to fail")
	}
	// 1 initial attempt + 2 retries = 3 sends.
	if tmux.sendCount != 3 {
		t.Fatalf("expected 3 total attempts (1 + max_retries), got %d", tmux.sendCount)
	}
}

func TestDeliver_NoTierAvailable(t *testing.T) {
	tmux := &fakeTier{name: "tmux", available: false}
	verifier := &scriptedVerifier{results: []bool{true}}

	o := New([]Tier{tmux}, verifier, Config{ResumePrompt: "continue", MaxRetries: 2, RetryBackoff: []time.Duration{time.Millisecond}})
	result := o.Deliver(context.Background(), queue.RateLimitEvent{})

	if result.Success {
		t.Fatal("expected failure with no tier available")
	}
	if len(result.TiersAttempted) != 0 {
		t.Fatalf("expected no tiers attempted, got %v", result.TiersAttempted)
	}
}
