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

package api

import (
	"os"
	"strconv"
	"testing"
	"time"

	"autoresume/internal/queue"
	"autoresume/internal/statepaths"
)

func testPaths(t *testing.T) statepaths.Paths {
	t.Helper()
	return statepaths.DefaultPaths(t.TempDir())
}

func TestStatus_ReportsNotRunningWithoutPIDFile(t *testing.T) {
	paths := testPaths(t)
	report, err := Status(paths)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Running {
		t.Fatal("expected Running=false with no pid file")
	}
}

func TestStatus_ReportsQueueDepthAndNextEvent(t *testing.T) {
	paths := testPaths(t)
	store := queue.New(paths.QueueFile)
	if _, err := store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Hour).UTC()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	report, err := Status(paths)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.QueueDepth != 1 {
		t.Fatalf("expected queue depth 1, got %d", report.QueueDepth)
	}
	if report.NextStatus != string(queue.StatusPending) {
		t.Fatalf("expected next status pending, got %s", report.NextStatus)
	}
}

func TestReset_ClearsQueue(t *testing.T) {
	paths := testPaths(t)
	store := queue.New(paths.QueueFile)
	if _, err := store.Enqueue(queue.RateLimitEvent{ResetTime: time.Now().Add(time.Hour).UTC()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := Reset(paths); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	doc, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(doc.Queue) != 0 {
		t.Fatalf("expected empty queue after reset, got %d entries", len(doc.Queue))
	}
}

func TestLogs_ReturnsLastNLines(t *testing.T) {
	paths := testPaths(t)
	content := "line1\nline2\nline3\nline4\n"
	if err := os.WriteFile(paths.LogFile, []byte(content), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	lines, err := Logs(paths, 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(lines) != 2 || lines[0] != "line3" || lines[1] != "line4" {
		t.Fatalf("expected last 2 lines, got %v", lines)
	}
}

func TestConfigSetAndShow_RoundTrips(t *testing.T) {
	paths := testPaths(t)
	if err := ConfigSet(paths, "max_retries", "7"); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	out, err := ConfigShow(paths)
	if err != nil {
		t.Fatalf("ConfigShow: %v", err)
	}
	if !contains(out, `"max_retries": 7`) {
		t.Fatalf("expected rendered config to reflect override, got %s", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestHelp_ListsAllCommands(t *testing.T) {
	out := Help()
	for _, cmd := range []string{"start", "stop", "status", "restart", "test", "reset", "logs", "config", "help"} {
		if !contains(out, cmd) {
			t.Fatalf("expected help text to mention %q, got:\n%s", cmd, out)
		}
	}
}

func TestStop_NoRunningSupervisorErrors(t *testing.T) {
	paths := testPaths(t)
	if err := Stop(paths); err == nil {
		t.Fatal("expected Stop to error when no pid file exists")
	}
}

func writePIDFile(t *testing.T, path string, pid int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
}

func TestStatus_DetectsStalePIDFileAsNotRunning(t *testing.T) {
	paths := testPaths(t)
	writePIDFile(t, paths.PIDFile, 999999)

	report, err := Status(paths)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Running {
		t.Fatal("expected a stale pid file to report Running=false")
	}
}
