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

// Package queue implements the durable, on-disk FIFO of pending and
// historical rate-limit events. The document is a single JSON file shared
// read/write between the Supervisor process and the Analyzer invoked as an
// external hook, so every write goes through write-temp-then-rename.
package queue

import "time"

// Status is the lifecycle stage of a RateLimitEvent. Transitions only ever
// move forward; see IsForwardTransition.
type Status string

const (
	StatusPending  Status = "pending"
	StatusWaiting  Status = "waiting"
	StatusResuming Status = "resuming"
	StatusCompleted Status = "completed"
	StatusFailed   Status = "failed"
)

// statusOrder gives each status a monotonic rank so callers can reject
// backward transitions.
var statusOrder = map[Status]int{
	StatusPending:   0,
	StatusWaiting:   1,
	StatusResuming:  2,
	StatusCompleted: 3,
	StatusFailed:    3, // completed/failed are both terminal, same rank
}

// IsForwardTransition reports whether moving from 'from' to 'to' respects
// the monotonic-advance invariant (no transition backward). Terminal states
// (completed/failed) cannot transition to anything, including each other.
func IsForwardTransition(from, to Status) bool {
	if from == StatusCompleted || from == StatusFailed {
		return false
	}
	return statusOrder[to] >= statusOrder[from]
}

// RateLimitEvent is one pending or historical limit detection.
type RateLimitEvent struct {
	ID             string     `json:"id"`
	ResetTime      time.Time  `json:"reset_time"`
	Timezone       string     `json:"timezone"`
	Message        string     `json:"message"`
	DetectedAt     time.Time  `json:"detected_at"`
	SessionPID     *int       `json:"session_pid,omitempty"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	Status         Status     `json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// sameResetInstant reports whether two events' reset times fall within the
// 1-second dedup granularity the queue enforces.
func sameResetInstant(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Second
}

// Document is the on-disk shape of the queue file (§6 schema).
type Document struct {
	Detected    bool              `json:"detected"`
	Queue       []RateLimitEvent  `json:"queue"`
	Sessions    []string          `json:"sessions"`
	LastHookRun *time.Time        `json:"last_hook_run"`
}

// legacyDocument is the older flat form that must be accepted on read and
// promoted to a single-entry queue in memory, per the backward-compatibility
// requirement in §6.
type legacyDocument struct {
	Detected       bool      `json:"detected"`
	ResetTime      time.Time `json:"reset_time"`
	Timezone       string    `json:"timezone"`
	Message        string    `json:"message"`
	ClaudePID      *int      `json:"claude_pid"`
	TranscriptPath string    `json:"transcript_path"`
}
