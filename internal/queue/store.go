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

package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"autoresume/internal/telemetry"
)

// ErrInvalidQueueDocument names the corrupt-document condition. No Store
// method returns it: a corrupt file is backed up and reinitialized instead.
var ErrInvalidQueueDocument = errors.New("queue: invalid document")

// Store is the single critical-section gate for the on-disk queue document.
// Every exported method runs as one critical section over the whole file;
// the methods that change it write it back via atomic rename, exactly once
// (a missing or corrupt file is also written back as an empty document,
// even by read-only methods). A process-local mutex serializes
// the Supervisor's own goroutines; the rename itself is what keeps the
// Supervisor and an external hook invocation from corrupting each other.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store bound to the queue document at path. The directory
// containing path must already exist; New does not create it.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the queue document's path, for status reporting.
func (s *Store) Path() string { return s.path }

// load reads and parses the document, initializing or recovering it in
// place when absent or corrupt. Callers must hold s.mu.
func (s *Store) load() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := &Document{Queue: []RateLimitEvent{}, Sessions: []string{}}
		if err := s.save(doc); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("queue: failed to initialize missing document")
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: read %s: %w", s.path, err)
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err == nil && looksLikeCurrentForm(b) {
		if doc.Queue == nil {
			doc.Queue = []RateLimitEvent{}
		}
		if doc.Sessions == nil {
			doc.Sessions = []string{}
		}
		return &doc, nil
	}

	// Try the legacy flat form before giving up and treating it as corrupt.
	var legacy legacyDocument
	if err := json.Unmarshal(b, &legacy); err == nil && !legacy.ResetTime.IsZero() {
		return promoteLegacy(legacy), nil
	}

	// Neither form parsed: back up the corrupt file and reinitialize, never
	// crashing the caller. The original is only overwritten once the backup
	// copy exists.
	fresh := &Document{Queue: []RateLimitEvent{}, Sessions: []string{}}
	if err := s.backupCorrupt(b); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("queue: failed to back up corrupt document")
		return fresh, nil
	}
	if err := s.save(fresh); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("queue: failed to reinitialize corrupt document")
	}
	return fresh, nil
}

// looksLikeCurrentForm distinguishes the current {queue: [...]} schema from
// the legacy flat schema, both of which can unmarshal into Document without
// error (zero-value fields). We require the discriminating "queue" key to be
// present in the raw JSON.
func looksLikeCurrentForm(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, hasQueue := probe["queue"]
	return hasQueue
}

// promoteLegacy converts the older flat document into a single-entry queue.
func promoteLegacy(l legacyDocument) *Document {
	ev := RateLimitEvent{
		ID:             uuid.NewString(),
		ResetTime:      l.ResetTime,
		Timezone:       l.Timezone,
		Message:        l.Message,
		DetectedAt:     time.Now().UTC(),
		SessionPID:     l.ClaudePID,
		TranscriptPath: l.TranscriptPath,
		Status:         StatusPending,
	}
	sessions := []string{}
	doc := &Document{
		Detected: l.Detected,
		Queue:    []RateLimitEvent{ev},
		Sessions: sessions,
	}
	return doc
}

// backupCorrupt copies the unreadable document aside to a sibling with a
// timestamped ".corrupt.<unixnano>" suffix so an operator can inspect it
// later; load then overwrites the original with a fresh document.
func (s *Store) backupCorrupt(raw []byte) error {
	backupPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UnixNano())
	return os.WriteFile(backupPath, raw, 0o644)
}

// save writes doc to s.path via write-to-temp-then-rename. Callers must hold
// s.mu. The temp file lives alongside the target so the rename stays within
// one filesystem (a cross-device rename would not be atomic).
func (s *Store) save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("queue: mkdir: %w", err)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("queue: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("queue: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("queue: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("queue: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("queue: rename: %w", err)
	}
	return nil
}

// Enqueue appends event if no pending entry shares its reset_time within 1s,
// and returns the event actually in the queue afterward (either the new one,
// or the existing duplicate). The id is assigned if unset.
func (s *Store) Enqueue(ev RateLimitEvent) (RateLimitEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return RateLimitEvent{}, err
	}

	for _, existing := range doc.Queue {
		if existing.Status == StatusPending && sameResetInstant(existing.ResetTime, ev.ResetTime) {
			return existing, nil
		}
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now().UTC()
	}
	doc.Queue = append(doc.Queue, ev)

	now := time.Now().UTC()
	doc.LastHookRun = &now
	doc.Detected = true

	if err := s.save(doc); err != nil {
		return RateLimitEvent{}, err
	}
	telemetry.ObserveEnqueued()
	return ev, nil
}

// PeekNextPending returns the pending entry with the smallest reset_time, or
// ok=false if there is none.
func (s *Store) PeekNextPending() (RateLimitEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return RateLimitEvent{}, false, err
	}
	return peekNextPending(doc)
}

func peekNextPending(doc *Document) (RateLimitEvent, bool, error) {
	var best *RateLimitEvent
	for i := range doc.Queue {
		ev := &doc.Queue[i]
		if ev.Status != StatusPending {
			continue
		}
		if best == nil || ev.ResetTime.Before(best.ResetTime) {
			best = ev
		}
	}
	if best == nil {
		return RateLimitEvent{}, false, nil
	}
	return *best, true, nil
}

// UpdateStatus atomically advances the event with the given id to newStatus,
// refusing a backward transition. completedAt is recorded only when
// newStatus is a terminal status.
func (s *Store) UpdateStatus(id string, newStatus Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range doc.Queue {
		if doc.Queue[i].ID != id {
			continue
		}
		found = true
		if !IsForwardTransition(doc.Queue[i].Status, newStatus) {
			return fmt.Errorf("queue: refusing backward transition %s -> %s for event %s", doc.Queue[i].Status, newStatus, id)
		}
		if newStatus == StatusResuming {
			for j := range doc.Queue {
				if j != i && doc.Queue[j].Status == StatusResuming {
					return fmt.Errorf("queue: another event %s is already resuming", doc.Queue[j].ID)
				}
			}
		}
		doc.Queue[i].Status = newStatus
		if newStatus == StatusCompleted || newStatus == StatusFailed {
			now := time.Now().UTC()
			doc.Queue[i].CompletedAt = &now
		}
		break
	}
	if !found {
		return fmt.Errorf("queue: no event with id %s", id)
	}
	return s.save(doc)
}

// Prune removes completed/failed entries whose completed_at is older than
// retention. Entries never revived once pruned.
func (s *Store) Prune(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	kept := doc.Queue[:0]
	removed := 0
	for _, ev := range doc.Queue {
		if (ev.Status == StatusCompleted || ev.Status == StatusFailed) && ev.CompletedAt != nil && ev.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	doc.Queue = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(doc)
}

// Depth returns the number of non-terminal (pending/waiting/resuming)
// entries currently in the queue document, for the queue-depth gauge and
// the `status` command.
func (s *Store) Depth() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range doc.Queue {
		if ev.Status != StatusCompleted && ev.Status != StatusFailed {
			n++
		}
	}
	return n, nil
}

// Snapshot returns a point-in-time copy of the document, for status reporting
// and the local HTTP/WebSocket surfaces. It recovers a missing/corrupt file
// the same way every other operation does.
func (s *Store) Snapshot() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Document{}, err
	}
	return *doc, nil
}

// ForceReady pulls the pending event id's reset_time to now, letting an
// operator short-circuit a countdown via the `resume-now` local-server
// action instead of waiting out the real deadline. The scheduler's
// existing countdown/watcher loop notices the change on its own.
func (s *Store) ForceReady(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Queue {
		if doc.Queue[i].ID != id {
			continue
		}
		if doc.Queue[i].Status != StatusPending {
			return fmt.Errorf("queue: event %s is not pending", id)
		}
		doc.Queue[i].ResetTime = time.Now().UTC()
		return s.save(doc)
	}
	return fmt.Errorf("queue: no event with id %s", id)
}

// Reset clears the queue document entirely (the `reset` command).
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(&Document{Queue: []RateLimitEvent{}, Sessions: []string{}})
}

// AddSession records a session id as having contributed at least one event.
func (s *Store) AddSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, id := range doc.Sessions {
		if id == sessionID {
			return nil
		}
	}
	doc.Sessions = append(doc.Sessions, sessionID)
	sort.Strings(doc.Sessions)
	return s.save(doc)
}
