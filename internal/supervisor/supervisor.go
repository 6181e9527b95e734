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

package supervisor

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"autoresume/internal/api"
	"autoresume/internal/audit"
	"autoresume/internal/config"
	"autoresume/internal/delivery"
	"autoresume/internal/delivery/nativetier"
	"autoresume/internal/delivery/ptytier"
	"autoresume/internal/delivery/tmuxtier"
	"autoresume/internal/queue"
	"autoresume/internal/scheduler"
	"autoresume/internal/statepaths"
	"autoresume/internal/telemetry"
	"autoresume/internal/verify"
	"autoresume/internal/watcher"
)

// Paths bundles the on-disk locations the Supervisor owns, per §3's
// SupervisorState. It is an alias of statepaths.Paths so that package,
// which internal/api also depends on for its read-only accessors, stays
// the single definition.
type Paths = statepaths.Paths

// DefaultPaths derives the standard Supervisor file layout under dir.
var DefaultPaths = statepaths.DefaultPaths

// Supervisor wires the watcher, scheduler, delivery orchestrator, active
// verifier, telemetry, and audit capability into one running process. It
// owns none of their algorithms -- only their lifecycle.
type Supervisor struct {
	paths Paths
	cfg   config.Config
	store *queue.Store
	log   *telemetry.RotatingWriter
	sink  audit.Sink
	lock  audit.Lock

	heartbeat *Heartbeat
	watchdog  *MemoryWatchdog
	keepAlive *KeepAlive
	watch     *watcher.Watcher
	sched     *scheduler.Scheduler

	hub       *api.Hub
	hubStop   chan struct{}
	localHTTP *http.Server
}

// Dependencies lets callers plug in an audit sink/lock; both default to
// no-ops when nil, per the capability-interface pattern in audit.
type Dependencies struct {
	Sink audit.Sink
	Lock audit.Lock
}

// New constructs a Supervisor from paths and a loaded configuration. It
// does not acquire the PID file or start any background activity; call
// Run for that.
func New(paths Paths, cfg config.Config, deps Dependencies) (*Supervisor, error) {
	sink := deps.Sink
	if sink == nil {
		sink = audit.NoopSink{}
	}
	lock := deps.Lock
	if lock == nil {
		lock = audit.NoopLock{}
	}

	logWriter, err := telemetry.NewRotatingWriter(paths.LogFile)
	if err != nil {
		return nil, err
	}
	logWriter.SetMaxSize(int64(cfg.MaxLogSizeMB * 1024 * 1024))
	telemetry.Configure(logWriter, isInteractive())

	store := queue.New(paths.QueueFile)

	s := &Supervisor{
		paths: paths,
		cfg:   cfg,
		store: store,
		log:   logWriter,
		sink:  sink,
		lock:  lock,
	}
	return s, nil
}

func isInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// Run acquires the single-instance PID guard and the crash-loop throttle,
// wires the full pipeline, and blocks until ctx is cancelled (cmd/autoresume
// owns signal.Notify and cancels ctx on a terminating signal), then calls
// Shutdown. Run itself never installs
// signal handlers so it stays testable without touching process signals.
func (s *Supervisor) Run(ctx context.Context) error {
	CheckCrashLoop(s.paths.LastStartFile, DefaultStartThrottleWindow)

	if err := AcquirePIDFile(s.paths.PIDFile); err != nil {
		return err
	}

	// Secondary single-instance check, layered on top of the PID-file
	// guard: when a distributed lock is configured (shared state
	// directory across hosts), refuse to run if another host already
	// holds it. The PID file above remains the primary, required guard
	// either way -- this only adds a cross-host layer on top of it.
	lockKey := "autoresume:" + s.paths.PIDFile
	held, err := s.lock.TryAcquire(ctx, lockKey, 90*time.Second)
	if err != nil {
		log.Warn().Err(err).Msg("supervisor: distributed lock check failed, continuing on pid-file guard alone")
	} else if !held {
		_ = ReleasePIDFile(s.paths.PIDFile)
		return ErrSingleInstanceConflict
	}

	if s.cfg.MetricsAddr != "" {
		telemetry.StartMetricsEndpoint(s.cfg.MetricsAddr)
	}

	if s.cfg.LocalServerEnabled {
		s.hub = api.NewHub()
		s.hubStop = make(chan struct{})
		go s.hub.Run(s.hubStop)

		srv := api.NewServer(s.paths, s.hub)
		s.localHTTP = &http.Server{Addr: s.cfg.LocalServerAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.localHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("supervisor: local server exited")
			}
		}()
	}

	s.heartbeat = NewHeartbeat(s.paths.HeartbeatFile, 30*time.Second)
	s.heartbeat.Start()

	s.watchdog = NewMemoryWatchdog(s.cfg.MemoryCeilingMB, 60*time.Second, func(sampled uint64) {
		log.Error().Uint64("sampled_bytes", sampled).Msg("supervisor: memory ceiling exceeded, exiting")
		os.Exit(1)
	})
	s.watchdog.Start()

	if ka, err := NewKeepAlive("127.0.0.1:0"); err == nil {
		s.keepAlive = ka
	} else {
		log.Warn().Err(err).Msg("supervisor: could not bind keep-alive socket")
	}

	locator := watcher.DefaultLocator(s.paths.TranscriptDir, ".jsonl", 3)
	s.watch = watcher.New(s.store, watcher.Options{
		CheckInterval:            time.Duration(s.cfg.CheckIntervalMS) * time.Millisecond,
		TranscriptPollingEnabled: s.cfg.TranscriptPollingEnabled,
		LocateTranscript:         locator,
	})

	orchestrator := delivery.New(
		[]delivery.Tier{tmuxtier.New(), ptytier.New(), nativetier.New()},
		&verify.Adapter{
			Store:                 s.store,
			Timeout:               time.Duration(s.cfg.ActiveVerificationTimeoutMS) * time.Millisecond,
			PollInterval:          time.Duration(s.cfg.ActiveVerificationPollMS) * time.Millisecond,
			VerificationWindowSec: time.Duration(s.cfg.VerificationWindowSec) * time.Second,
		},
		delivery.Config{
			ResumePrompt: s.cfg.ResumePrompt,
			MaxRetries:   s.cfg.MaxRetries,
			RetryBackoff: secondsToDurations(s.cfg.RetryBackoffSec),
		},
	)

	sink := &loggingProgressSink{store: s.store, audit: s.sink, hub: s.hub}
	s.sched = scheduler.New(s.store, s.watch.Heads(), &orchestratorAdapter{orchestrator}, sink,
		time.Duration(s.cfg.PostResetDelaySec)*time.Second)

	s.watch.Start()
	s.sched.Start()

	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown performs the orderly stop sequence from §4.9: stop the
// watcher, cancel any in-flight countdown, stop delivery, unlink the
// heartbeat and PID files.
func (s *Supervisor) Shutdown() error {
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.watch != nil {
		s.watch.Stop()
	}
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		_ = s.heartbeat.Remove()
	}
	if s.keepAlive != nil {
		_ = s.keepAlive.Close()
	}
	if s.localHTTP != nil {
		_ = s.localHTTP.Close()
	}
	if s.hubStop != nil {
		close(s.hubStop)
	}
	_ = s.lock.Release(context.Background(), "autoresume:"+s.paths.PIDFile)
	_ = s.log.Close()
	return ReleasePIDFile(s.paths.PIDFile)
}

func secondsToDurations(secs []int) []time.Duration {
	out := make([]time.Duration, len(secs))
	for i, sec := range secs {
		out[i] = time.Duration(sec) * time.Second
	}
	return out
}

// orchestratorAdapter bridges delivery.Orchestrator's Result type to
// scheduler.DeliveryResult: the field shapes are identical but the named
// types differ, so the interface isn't satisfied structurally.
type orchestratorAdapter struct {
	o *delivery.Orchestrator
}

func (a *orchestratorAdapter) Deliver(ctx context.Context, ev queue.RateLimitEvent) scheduler.DeliveryResult {
	r := a.o.Deliver(ctx, ev)
	return scheduler.DeliveryResult{
		Success:        r.Success,
		TierUsed:       r.TierUsed,
		TiersAttempted: r.TiersAttempted,
		Error:          r.Error,
	}
}

// loggingProgressSink implements scheduler.ProgressSink by logging every
// transition, recording terminal outcomes through the optional audit
// sink, and (when the local server is enabled) broadcasting each
// transition to connected WebSocket clients via hub.
type loggingProgressSink struct {
	store *queue.Store
	audit audit.Sink
	hub   *api.Hub
}

func (l *loggingProgressSink) Countdown(ev queue.RateLimitEvent, remaining time.Duration) {
	log.Debug().Str("event_id", ev.ID).Dur("remaining", remaining).Msg("countdown")
	if l.hub != nil {
		l.hub.Broadcast("countdown", map[string]interface{}{
			"event_id":       ev.ID,
			"remaining_secs": remaining.Seconds(),
		})
	}
}

func (l *loggingProgressSink) Resuming(ev queue.RateLimitEvent) {
	log.Info().Str("event_id", ev.ID).Msg("resuming")
	if l.hub != nil {
		l.hub.Broadcast("resuming", map[string]interface{}{"event_id": ev.ID})
	}
}

func (l *loggingProgressSink) Completed(ev queue.RateLimitEvent, tierUsed string) {
	log.Info().Str("event_id", ev.ID).Str("tier", tierUsed).Msg("completed")
	_ = l.audit.Record(context.Background(), ev, tierUsed)
	if l.hub != nil {
		l.hub.Broadcast("completed", map[string]interface{}{"event_id": ev.ID, "tier_used": tierUsed})
	}
}

func (l *loggingProgressSink) Failed(ev queue.RateLimitEvent, trace []string) {
	log.Warn().Str("event_id", ev.ID).Strs("tiers_attempted", trace).Msg("failed")
	_ = l.audit.Record(context.Background(), ev, "")
	if l.hub != nil {
		l.hub.Broadcast("failed", map[string]interface{}{"event_id": ev.ID, "tiers_attempted": trace})
	}
}
