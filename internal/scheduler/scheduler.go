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

// Package scheduler drives the countdown for the current queue head: it
// ticks once a second while the reset deadline approaches, then hands the
// event to the Delivery Orchestrator once the post-reset safety delay has
// elapsed.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"autoresume/internal/queue"
	"autoresume/internal/telemetry"
	"autoresume/internal/watcher"
)

// DeliveryResult is the Delivery Orchestrator's output contract (§4.6).
type DeliveryResult struct {
	Success        bool
	TierUsed       string
	TiersAttempted []string
	Error          string
}

// Deliverer is implemented by the Delivery Orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, ev queue.RateLimitEvent) DeliveryResult
}

// ProgressSink receives human-readable countdown ticks and terminal
// notifications, per the External Interface Layer's progress/notification
// surface (§6). The Supervisor wires this to the log, and optionally to the
// local WebSocket broadcaster.
type ProgressSink interface {
	Countdown(ev queue.RateLimitEvent, remaining time.Duration)
	Resuming(ev queue.RateLimitEvent)
	Completed(ev queue.RateLimitEvent, tierUsed string)
	Failed(ev queue.RateLimitEvent, trace []string)
}

// Scheduler consumes Head notifications from the Watcher and runs the
// countdown/delivery cycle for one event at a time, honoring the
// at-most-one-event-resuming invariant (enforced again, defensively, by
// queue.Store.UpdateStatus).
type Scheduler struct {
	store             *queue.Store
	heads             <-chan watcher.Head
	deliverer         Deliverer
	sink              ProgressSink
	postResetDelay    time.Duration

	cancelCurrent context.CancelFunc
	mu            sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// New constructs a Scheduler. postResetDelay corresponds to
// post_reset_delay_sec in the configuration document.
func New(store *queue.Store, heads <-chan watcher.Head, deliverer Deliverer, sink ProgressSink, postResetDelay time.Duration) *Scheduler {
	return &Scheduler{
		store:          store,
		heads:          heads,
		deliverer:      deliverer,
		sink:           sink,
		postResetDelay: postResetDelay,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop cancels any in-flight countdown and stops the loop. Idempotent.
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	s.mu.Lock()
	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	s.mu.Unlock()
	close(s.stopChan)
	s.wg.Wait()
}

// run processes heads one at a time: each head's countdown and delivery run
// to completion before the next head is read. A head that arrives during a
// cycle waits in the watcher's one-slot channel (a newer head replaces an
// older undelivered one there) and does not interrupt the countdown in
// flight, even when its reset_time is earlier.
func (s *Scheduler) run() {
	for {
		select {
		case <-s.stopChan:
			return
		case head, ok := <-s.heads:
			if !ok {
				return
			}
			s.runOne(head.Event)
		}
	}
}

// runOne executes one full countdown+delivery cycle for ev, honoring
// cancellation via s.stopChan.
func (s *Scheduler) runOne(ev queue.RateLimitEvent) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelCurrent = cancel
	s.mu.Unlock()
	defer cancel()

	// Mark the event waiting as soon as the watcher hands it off, so the
	// documented pending->waiting->resuming->completed/failed state machine
	// is actually traversed instead of jumping straight to resuming.
	if err := s.store.UpdateStatus(ev.ID, queue.StatusWaiting); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("scheduler: could not mark waiting")
		return
	}
	ev.Status = queue.StatusWaiting

	if err := s.countdown(ctx, ev); err != nil {
		return // cancelled by Stop
	}

	time.Sleep(s.postResetDelay)
	select {
	case <-s.stopChan:
		return
	default:
	}

	if err := s.store.UpdateStatus(ev.ID, queue.StatusResuming); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("scheduler: could not mark resuming")
		return
	}
	if s.sink != nil {
		s.sink.Resuming(ev)
	}

	result := s.deliverer.Deliver(ctx, ev)
	if result.Success {
		if err := s.store.UpdateStatus(ev.ID, queue.StatusCompleted); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("scheduler: could not mark completed")
		}
		telemetry.ObserveCompleted()
		if s.sink != nil {
			s.sink.Completed(ev, result.TierUsed)
		}
		return
	}

	if err := s.store.UpdateStatus(ev.ID, queue.StatusFailed); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("scheduler: could not mark failed")
	}
	telemetry.ObserveFailed()
	if s.sink != nil {
		s.sink.Failed(ev, result.TiersAttempted)
	}
}

// countdown ticks once a second, reporting remaining time to the sink, until
// the deadline passes or ctx is cancelled.
func (s *Scheduler) countdown(ctx context.Context, ev queue.RateLimitEvent) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		remaining := time.Until(ev.ResetTime)
		if s.sink != nil {
			s.sink.Countdown(ev, remaining)
		}
		if remaining <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopChan:
			return context.Canceled
		case <-ticker.C:
		}
	}
}
