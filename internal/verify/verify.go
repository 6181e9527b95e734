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

// Package verify implements the Active Verifier (§4.8): after a delivery
// tier sends the keystroke sequence, confirm the assistant actually
// received it by watching for new transcript activity, falling back to a
// passive mode when no transcript is available to watch.
package verify

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"autoresume/internal/queue"
)

// Input mirrors the Active Verifier's input contract.
type Input struct {
	TranscriptPath string
	BaselineMTime  time.Time
	BaselineSize   int64
	SentAt         time.Time
	Timeout        time.Duration
	PollInterval   time.Duration
}

// Result reports whether delivery was confirmed.
type Result struct {
	Verified  bool
	NewBytes  int64
	Elapsed   time.Duration
}

// Verify polls the transcript file until it either sees fresh, well-formed
// activity timestamped at or after SentAt, or the timeout elapses.
func Verify(ctx context.Context, in Input) Result {
	start := time.Now()
	ticker := time.NewTicker(in.PollInterval)
	defer ticker.Stop()

	for {
		if time.Since(in.SentAt) >= in.Timeout {
			return Result{Verified: false, Elapsed: time.Since(start)}
		}

		if ok, newBytes := checkOnce(in); ok {
			return Result{Verified: true, NewBytes: newBytes, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return Result{Verified: false, Elapsed: time.Since(start)}
		case <-ticker.C:
		}
	}
}

// checkOnce performs one stat-and-maybe-read pass.
func checkOnce(in Input) (bool, int64) {
	info, err := os.Stat(in.TranscriptPath)
	if err != nil {
		return false, 0
	}
	if !info.ModTime().After(in.BaselineMTime) || info.Size() <= in.BaselineSize {
		return false, 0
	}

	f, err := os.Open(in.TranscriptPath)
	if err != nil {
		return false, 0
	}
	defer f.Close()

	if _, err := f.Seek(in.BaselineSize, 0); err != nil {
		return false, 0
	}
	tail := make([]byte, info.Size()-in.BaselineSize)
	n, _ := f.Read(tail)
	tail = tail[:n]

	if hasFreshRecord(tail, in.SentAt) {
		return true, int64(n)
	}
	return false, 0
}

// record is the subset of a transcript line's shape needed to find its
// timestamp; schemas vary across transcript producers, so both common key
// names are tried.
type record struct {
	Timestamp time.Time `json:"timestamp"`
	Ts        time.Time `json:"ts"`
}

// hasFreshRecord scans tail line by line for at least one well-formed JSON
// record whose timestamp is at or after sentAt.
func hasFreshRecord(tail []byte, sentAt time.Time) bool {
	start := 0
	for i := 0; i <= len(tail); i++ {
		if i == len(tail) || tail[i] == '\n' {
			line := tail[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var rec record
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			ts := rec.Timestamp
			if ts.IsZero() {
				ts = rec.Ts
			}
			if !ts.IsZero() && !ts.Before(sentAt) {
				return true
			}
		}
	}
	return false
}

// PassiveInput is used when no transcript is available to watch (the
// fallback mode described in §4.8).
type PassiveInput struct {
	Store                 *queue.Store
	SentAt                time.Time
	VerificationWindowSec time.Duration
}

// VerifyPassive waits the verification window and declares success if no
// new rate-limit event has been enqueued with detected_at after SentAt --
// i.e. the assistant didn't immediately hit the limit again, which would
// indicate the resume never took effect.
func VerifyPassive(ctx context.Context, in PassiveInput) Result {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Result{Verified: false, Elapsed: time.Since(start)}
	case <-time.After(in.VerificationWindowSec):
	}

	doc, err := in.Store.Snapshot()
	if err != nil {
		return Result{Verified: false, Elapsed: time.Since(start)}
	}
	for _, ev := range doc.Queue {
		if ev.DetectedAt.After(in.SentAt) {
			return Result{Verified: false, Elapsed: time.Since(start)}
		}
	}
	return Result{Verified: true, Elapsed: time.Since(start)}
}
