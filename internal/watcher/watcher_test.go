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

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"autoresume/internal/queue"
)

func newTestWatcher(t *testing.T, opts Options) (*Watcher, *queue.Store) {
	t.Helper()
	dir := t.TempDir()
	store := queue.New(filepath.Join(dir, "status.json"))
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 50 * time.Millisecond
	}
	w := New(store, opts)
	return w, store
}

func TestQueueFileLoop_DetectsNewPendingHead(t *testing.T) {
	w, store := newTestWatcher(t, Options{})
	w.Start()
	defer w.Stop()

	ev, err := store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Minute).UTC()})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case head := <-w.Heads():
		if head.Event.ID != ev.ID {
			t.Fatalf("expected head %s, got %s", ev.ID, head.Event.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for head notification")
	}
}

func TestQueueFileLoop_NoDuplicateNotificationForSameHead(t *testing.T) {
	w, store := newTestWatcher(t, Options{})
	w.Start()
	defer w.Stop()

	if _, err := store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Minute).UTC()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-w.Heads():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first head notification")
	}

	// Let the periodic re-checks run without changing the pending head;
	// expect no second notification within a short window.
	select {
	case h := <-w.Heads():
		t.Fatalf("unexpected second notification: %+v", h)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTranscriptLoop_EnqueuesWhenNoPendingHead(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "session.jsonl")
	line := `{"message":{"role":"assistant","content":"You've hit your limit. Resets 3pm (America/New_York)"}}` + "\n"
	if err := os.WriteFile(transcriptPath, []byte(line), 0o644); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	store := queue.New(filepath.Join(dir, "status.json"))
	w := New(store, Options{
		CheckInterval:            time.Hour,
		TranscriptPollInterval:   30 * time.Millisecond,
		TranscriptStaleness:      time.Hour,
		TranscriptPollingEnabled: true,
		LocateTranscript: func() (string, time.Time, error) {
			info, err := os.Stat(transcriptPath)
			if err != nil {
				return "", time.Time{}, err
			}
			return transcriptPath, info.ModTime(), nil
		},
	})
	w.Start()
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.PeekNextPending(); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected transcript-derived event to be enqueued")
}

func TestTranscriptLoop_SkipsWhenAlreadyPending(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "session.jsonl")
	line := `{"message":{"role":"assistant","content":"You've hit your limit. Resets 3pm (UTC)"}}` + "\n"
	if err := os.WriteFile(transcriptPath, []byte(line), 0o644); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	store := queue.New(filepath.Join(dir, "status.json"))
	existing, err := store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Hour).UTC()})
	if err != nil {
		t.Fatalf("seed enqueue: %v", err)
	}

	w := New(store, Options{
		CheckInterval:            time.Hour,
		TranscriptPollInterval:   20 * time.Millisecond,
		TranscriptStaleness:      time.Hour,
		TranscriptPollingEnabled: true,
		LocateTranscript: func() (string, time.Time, error) {
			info, err := os.Stat(transcriptPath)
			if err != nil {
				return "", time.Time{}, err
			}
			return transcriptPath, info.ModTime(), nil
		},
	})
	w.Start()
	defer w.Stop()

	time.Sleep(200 * time.Millisecond)
	doc, err := store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(doc.Queue) != 1 || doc.Queue[0].ID != existing.ID {
		t.Fatalf("expected queue to remain untouched with only the seeded event, got %+v", doc.Queue)
	}
}
