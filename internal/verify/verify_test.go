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

package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autoresume/internal/queue"
)

func TestVerify_SucceedsWhenFreshRecordAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(`{"ts":"2026-01-01T00:00:00Z","text":"hello"}`+"\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	info, _ := os.Stat(path)
	sentAt := time.Now().UTC()

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		line := `{"ts":"` + time.Now().UTC().Format(time.RFC3339Nano) + `","text":"continuing"}` + "\n"
		f.WriteString(line)
	}()

	result := Verify(context.Background(), Input{
		TranscriptPath: path,
		BaselineMTime:  info.ModTime(),
		BaselineSize:   info.Size(),
		SentAt:         sentAt,
		Timeout:        2 * time.Second,
		PollInterval:   10 * time.Millisecond,
	})
	if !result.Verified {
		t.Fatal("expected verification to succeed once a fresh record appears")
	}
}

func TestVerify_TimesOutWithNoActivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(`{"ts":"2026-01-01T00:00:00Z"}`+"\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	info, _ := os.Stat(path)

	result := Verify(context.Background(), Input{
		TranscriptPath: path,
		BaselineMTime:  info.ModTime(),
		BaselineSize:   info.Size(),
		SentAt:         time.Now().UTC(),
		Timeout:        100 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})
	if result.Verified {
		t.Fatal("expected verification to fail with no new transcript activity")
	}
}

func TestVerify_StaleRecordDoesNotCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(`{"ts":"2020-01-01T00:00:00Z"}`+"\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	info, _ := os.Stat(path)
	sentAt := time.Now().UTC()

	go func() {
		time.Sleep(30 * time.Millisecond)
		f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		defer f.Close()
		f.WriteString(`{"ts":"2020-01-01T00:00:01Z","text":"old"}` + "\n")
	}()

	result := Verify(context.Background(), Input{
		TranscriptPath: path,
		BaselineMTime:  info.ModTime(),
		BaselineSize:   info.Size(),
		SentAt:         sentAt,
		Timeout:        150 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})
	if result.Verified {
		t.Fatal("expected a stale-timestamped record not to count as verification")
	}
}

func TestVerifyPassive_SucceedsWhenNoFreshEventEnqueued(t *testing.T) {
	store := queue.New(filepath.Join(t.TempDir(), "status.json"))
	result := VerifyPassive(context.Background(), PassiveInput{
		Store:                 store,
		SentAt:                time.Now().UTC(),
		VerificationWindowSec: 30 * time.Millisecond,
	})
	if !result.Verified {
		t.Fatal("expected passive verification to succeed with an empty queue")
	}
}

func TestVerifyPassive_FailsWhenNewEventEnqueuedAfterSentAt(t *testing.T) {
	store := queue.New(filepath.Join(t.TempDir(), "status.json"))
	sentAt := time.Now().UTC()

	go func() {
		time.Sleep(20 * time.Millisecond)
		store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Hour).UTC()})
	}()

	result := VerifyPassive(context.Background(), PassiveInput{
		Store:                 store,
		SentAt:                sentAt,
		VerificationWindowSec: 100 * time.Millisecond,
	})
	if result.Verified {
		t.Fatal("expected passive verification to fail when a fresh rate-limit event appears")
	}
}
