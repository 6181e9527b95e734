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

// Package delivery implements the tier-based Delivery Orchestrator (§4.6):
// given a target session and a resume prompt, it tries each available tier
// in priority order, verifying success before declaring the event resolved,
// and falls back to a configured retry/backoff schedule across tiers before
// giving up.
package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"autoresume/internal/queue"
	"autoresume/internal/telemetry"
)

// Target describes the session a keystroke sequence must reach.
type Target struct {
	SessionPID     *int
	TranscriptPath string
}

// Outcome is one tier attempt's result.
type Outcome int

const (
	// OutcomeSuccess means the tier delivered and the verifier confirmed it.
	OutcomeSuccess Outcome = iota
	// OutcomeUnavailable means the tier's availability probe failed;
	// downgrade to the next tier without counting against the retry budget.
	OutcomeUnavailable
	// OutcomeTransientFailure means the tier attempted delivery but the
	// verifier didn't confirm it (or the tier's subprocess failed non-fatally);
	// counts toward the retry budget.
	OutcomeTransientFailure
)

// Tier is one delivery mechanism (tmux, PTY, native injection).
type Tier interface {
	// Name identifies the tier in tiers_attempted traces ("tmux", "pty", "native").
	Name() string
	// Available reports whether this tier can plausibly reach target right now.
	Available(ctx context.Context, target Target) bool
	// Send delivers the keystroke sequence. It does not itself verify delivery;
	// the orchestrator runs the Verifier after a successful Send.
	Send(ctx context.Context, target Target, prompt string) error
}

// Verifier confirms that a delivered keystroke sequence actually reached the
// assistant (§4.8 Active Verifier).
type Verifier interface {
	Verify(ctx context.Context, target Target, sentAt time.Time) (verified bool, err error)
}

// Result mirrors the orchestrator's output contract in §4.6.
type Result struct {
	Success        bool
	TierUsed       string
	TiersAttempted []string
	Error          string
}

// Orchestrator runs tiers, in priority order, against one target.
type Orchestrator struct {
	tiers          []Tier
	verifier       Verifier
	resumePrompt   string
	maxRetries     int
	retryBackoff   []time.Duration
}

// Config bundles the tunables pulled from the configuration document.
type Config struct {
	ResumePrompt string
	MaxRetries   int
	RetryBackoff []time.Duration
}

// New constructs an Orchestrator. tiers must already be in priority order
// (highest priority first).
func New(tiers []Tier, verifier Verifier, cfg Config) *Orchestrator {
	backoff := cfg.RetryBackoff
	if len(backoff) == 0 {
		backoff = []time.Duration{10 * time.Second}
	}
	return &Orchestrator{
		tiers:        tiers,
		verifier:     verifier,
		resumePrompt: cfg.ResumePrompt,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: backoff,
	}
}

// Deliver runs the tier/retry attempt for ev and returns its Result. It does
// not satisfy scheduler.Deliverer directly; the supervisor adapts it.
func (o *Orchestrator) Deliver(ctx context.Context, ev queue.RateLimitEvent) Result {
	started := time.Now()
	defer func() {
		telemetry.ObserveDeliveryLatencySeconds(time.Since(started).Seconds())
	}()

	target := Target{SessionPID: ev.SessionPID, TranscriptPath: ev.TranscriptPath}

	var attempted []string
	lastAttemptedTier := -1

	// Pass 1: try every available tier once, in priority order.
	for i, tier := range o.tiers {
		if !tier.Available(ctx, target) {
			telemetry.ObserveDeliveryAttempt(tier.Name(), "unavailable")
			continue
		}
		attempted = append(attempted, tier.Name())
		lastAttemptedTier = i
		if o.attempt(ctx, tier, target) {
			return Result{Success: true, TierUsed: tier.Name(), TiersAttempted: attempted}
		}
	}

	if lastAttemptedTier == -1 {
		return Result{Success: false, TiersAttempted: attempted, Error: "no delivery tier is available"}
	}

	// Pass 2: retry schedule. Each round, re-probe availability and retry the
	// highest-priority tier that is currently available.
	for i := 0; i < o.maxRetries; i++ {
		wait := o.retryBackoff[min(i, len(o.retryBackoff)-1)]
		select {
		case <-ctx.Done():
			return Result{Success: false, TiersAttempted: attempted, Error: ctx.Err().Error()}
		case <-time.After(wait):
		}

		var retried bool
		for _, tier := range o.tiers {
			if !tier.Available(ctx, target) {
				telemetry.ObserveDeliveryAttempt(tier.Name(), "unavailable")
				continue
			}
			attempted = append(attempted, tier.Name())
			retried = true
			if o.attempt(ctx, tier, target) {
				return Result{Success: true, TierUsed: tier.Name(), TiersAttempted: attempted}
			}
			break // only the highest-priority available tier per retry round
		}
		if !retried {
			log.Warn().Msg("delivery: no tier available during retry round")
		}
	}

	return Result{Success: false, TiersAttempted: attempted, Error: "all tiers exhausted"}
}

// attempt sends the keystroke sequence through one tier and verifies it,
// recording the outcome ("success" or "transient_failure") for the tier.
func (o *Orchestrator) attempt(ctx context.Context, tier Tier, target Target) bool {
	sentAt := time.Now().UTC()
	if err := tier.Send(ctx, target, o.resumePrompt); err != nil {
		log.Warn().Err(err).Str("tier", tier.Name()).Msg("delivery: send failed")
		telemetry.ObserveDeliveryAttempt(tier.Name(), "transient_failure")
		return false
	}
	verified, err := o.verifier.Verify(ctx, target, sentAt)
	if err != nil {
		log.Warn().Err(err).Str("tier", tier.Name()).Msg("delivery: verification errored")
		telemetry.ObserveDeliveryAttempt(tier.Name(), "transient_failure")
		return false
	}
	if !verified {
		telemetry.ObserveDeliveryAttempt(tier.Name(), "transient_failure")
		return false
	}
	telemetry.ObserveDeliveryAttempt(tier.Name(), "success")
	return true
}
