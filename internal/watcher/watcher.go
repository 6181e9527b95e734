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

// Package watcher runs the two observers that feed the Scheduler: a
// queue-file observer that reacts to mtime changes (fsnotify-backed, with a
// polling fallback for filesystems fsnotify can't watch), and a transcript
// poller that exists purely as a safety net when the external hook never
// fires.
package watcher

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"autoresume/internal/analyzer"
	"autoresume/internal/queue"
	"autoresume/internal/telemetry"
)

// Head is the event handed to the Scheduler whenever the pending head of the
// queue changes.
type Head struct {
	Event queue.RateLimitEvent
}

// TranscriptLocator finds the transcript most likely to contain a fresh
// rate-limit notice. Separated out so tests can substitute a fixed path
// instead of walking a real project tree.
type TranscriptLocator func() (path string, modTime time.Time, ok error)

// Watcher owns both observer loops.
type Watcher struct {
	store           *queue.Store
	checkInterval   time.Duration
	pollFallback    time.Duration
	transcriptPoll  time.Duration
	transcriptStale time.Duration
	locateTranscript TranscriptLocator
	enableTranscript bool

	headCh   chan Head
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32

	mu              sync.Mutex
	currentResetKey string
}

// Options configures a Watcher. Zero values take the documented defaults.
type Options struct {
	CheckInterval            time.Duration
	TranscriptPollInterval   time.Duration
	TranscriptStaleness      time.Duration
	TranscriptPollingEnabled bool
	LocateTranscript         TranscriptLocator
}

// New constructs a Watcher bound to store. Its Heads channel (buffered,
// capacity 1) receives a Head value each time the pending queue head changes.
func New(store *queue.Store, opts Options) *Watcher {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 5 * time.Second
	}
	if opts.TranscriptPollInterval <= 0 {
		opts.TranscriptPollInterval = 30 * time.Second
	}
	if opts.TranscriptStaleness <= 0 {
		opts.TranscriptStaleness = 10 * time.Minute
	}
	return &Watcher{
		store:            store,
		checkInterval:    opts.CheckInterval,
		pollFallback:     opts.CheckInterval,
		transcriptPoll:   opts.TranscriptPollInterval,
		transcriptStale:  opts.TranscriptStaleness,
		locateTranscript: opts.LocateTranscript,
		enableTranscript: opts.TranscriptPollingEnabled && opts.LocateTranscript != nil,
		headCh:           make(chan Head, 1),
		stopChan:         make(chan struct{}),
	}
}

// Heads returns the channel on which pending-head changes are delivered.
func (w *Watcher) Heads() <-chan Head { return w.headCh }

// Start launches both observer goroutines.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.queueFileLoop()
	}()

	if w.enableTranscript {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.transcriptLoop()
		}()
	}
}

// Stop halts both loops and waits for them to exit. Idempotent.
func (w *Watcher) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

// queueFileLoop prefers fsnotify on the queue file's directory; if the
// watcher can't be constructed or the add fails (some network filesystems
// don't support inotify), it falls back to plain interval polling. Either
// way, every trigger re-stats and re-reads through the Store, so a missed
// fsnotify event is never fatal -- the next poll or event catches up.
func (w *Watcher) queueFileLoop() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("watcher: fsnotify unavailable, falling back to polling")
		w.pollLoop()
		return
	}
	defer fsw.Close()

	if err := fsw.Add(w.store.Path()); err != nil {
		// The queue file may not exist yet; watch its directory instead.
		if dirErr := fsw.Add(dirOf(w.store.Path())); dirErr != nil {
			log.Warn().Err(err).Msg("watcher: cannot watch queue file or its directory, falling back to polling")
			w.pollLoop()
			return
		}
	}

	ticker := time.NewTicker(w.pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkQueueHead()
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.checkQueueHead()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

// pollLoop is the fsnotify-unavailable fallback: plain interval polling.
func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkQueueHead()
		}
	}
}

// checkQueueHead reads the pending head and, if its identity changed since
// last observed, emits a Head to the Scheduler.
func (w *Watcher) checkQueueHead() {
	if depth, err := w.store.Depth(); err == nil {
		telemetry.SetQueueDepth(float64(depth))
	}

	head, ok, err := w.store.PeekNextPending()
	if err != nil {
		log.Warn().Err(err).Msg("watcher: peek_next_pending failed")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !ok {
		w.currentResetKey = ""
		return
	}
	key := head.ID + "|" + head.ResetTime.String()
	if key == w.currentResetKey {
		return
	}
	w.currentResetKey = key

	select {
	case w.headCh <- Head{Event: head}:
	default:
		// Drain the stale value and send the fresh one -- the Scheduler only
		// ever cares about the most recent head.
		select {
		case <-w.headCh:
		default:
		}
		w.headCh <- Head{Event: head}
	}
}

// transcriptLoop is the passive fallback described in §4.4: every poll
// interval, find the most recently touched transcript; if it's fresh enough
// and the Analyzer finds a rate-limit notice in it, enqueue the event --
// but only when nothing is already pending (the hook path is authoritative
// when it's working).
func (w *Watcher) transcriptLoop() {
	ticker := time.NewTicker(w.transcriptPoll)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.pollTranscript()
		}
	}
}

func (w *Watcher) pollTranscript() {
	path, modTime, err := w.locateTranscript()
	if err != nil {
		return
	}
	if time.Since(modTime) > w.transcriptStale {
		return
	}

	result, err := analyzer.AnalyzeFile(path)
	if err != nil || result == nil {
		return
	}

	if _, hasPending, err := w.store.PeekNextPending(); err == nil && hasPending {
		return
	}

	if _, err := w.store.Enqueue(queue.RateLimitEvent{
		ResetTime:      result.ResetTimeUTC,
		Timezone:       result.Timezone,
		Message:        result.RawMessage,
		TranscriptPath: path,
	}); err != nil {
		log.Warn().Err(err).Msg("watcher: failed to enqueue transcript-derived event")
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// DefaultLocator builds a TranscriptLocator that walks root looking for the
// most recently modified file matching suffix, at most maxDepth directories
// deep, mirroring the "well-known project tree, depth <= 3" rule in §4.4.
func DefaultLocator(root, suffix string, maxDepth int) TranscriptLocator {
	return func() (string, time.Time, error) {
		var bestPath string
		var bestMod time.Time
		err := walkDepth(root, 0, maxDepth, func(path string, info os.FileInfo) {
			if info.IsDir() {
				return
			}
			if len(suffix) > 0 && !hasSuffix(path, suffix) {
				return
			}
			if info.ModTime().After(bestMod) {
				bestMod = info.ModTime()
				bestPath = path
			}
		})
		if err != nil {
			return "", time.Time{}, err
		}
		if bestPath == "" {
			return "", time.Time{}, os.ErrNotExist
		}
		return bestPath, bestMod, nil
	}
}

func walkDepth(dir string, depth, maxDepth int, visit func(path string, info os.FileInfo)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := dir + "/" + e.Name()
		info, err := e.Info()
		if err != nil {
			continue
		}
		if e.IsDir() {
			if depth < maxDepth {
				_ = walkDepth(path, depth+1, maxDepth, visit)
			}
			continue
		}
		visit(path, info)
	}
	return nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
