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

// Package api implements the supervisor binary's command surface (§6):
// the start/stop/status/restart/test/reset/logs/config/help subcommands,
// plus the optional loopback-only HTTP/WebSocket status servers. None of
// the command handlers contain pipeline logic -- they read and write the
// same on-disk documents (queue.Store, config.Config, the PID and
// heartbeat files) that the running Supervisor owns.
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"autoresume/internal/config"
	"autoresume/internal/queue"
	"autoresume/internal/statepaths"
)

// StatusReport is the human-readable summary printed by the `status`
// command and served by the local HTTP status endpoint.
type StatusReport struct {
	Running        bool      `json:"running"`
	PID            int       `json:"pid,omitempty"`
	HeartbeatAge   string    `json:"heartbeat_age,omitempty"`
	QueueDepth     int       `json:"queue_depth"`
	NextResetTime  time.Time `json:"next_reset_time,omitempty"`
	NextStatus     string    `json:"next_status,omitempty"`
}

// Status reports whether the supervisor named by paths.PIDFile is running
// and summarizes the current queue.
func Status(paths statepaths.Paths) (StatusReport, error) {
	var report StatusReport

	if pid, err := statepaths.ReadPID(paths.PIDFile); err == nil {
		if proc, ferr := os.FindProcess(pid); ferr == nil && proc.Signal(syscall.Signal(0)) == nil {
			report.Running = true
			report.PID = pid
		}
	}

	if ts, err := statepaths.ReadHeartbeat(paths.HeartbeatFile); err == nil {
		report.HeartbeatAge = time.Since(ts).Round(time.Second).String()
	}

	store := queue.New(paths.QueueFile)
	depth, err := store.Depth()
	if err != nil {
		return report, fmt.Errorf("api: queue depth: %w", err)
	}
	report.QueueDepth = depth
	if ev, ok, err := store.PeekNextPending(); err == nil && ok {
		report.NextResetTime = ev.ResetTime
		report.NextStatus = string(ev.Status)
	}
	return report, nil
}

// Stop sends SIGTERM to the PID recorded in paths.PIDFile and waits up to
// 5 seconds for the process to exit (checked by polling liveness), per
// §6's `stop` command contract.
func Stop(paths statepaths.Paths) error {
	pid, err := statepaths.ReadPID(paths.PIDFile)
	if err != nil {
		return fmt.Errorf("api: no running supervisor: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("api: signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if proc.Signal(syscall.Signal(0)) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	// Escalate: the process ignored SIGTERM within the grace window.
	return proc.Signal(syscall.SIGKILL)
}

// Reset clears the queue document, per §6's `reset` command.
func Reset(paths statepaths.Paths) error {
	return queue.New(paths.QueueFile).Reset()
}

// Logs returns the last n lines of the log file, per §6's `logs [--lines
// N]` command. n <= 0 returns the whole file.
func Logs(paths statepaths.Paths, n int) ([]string, error) {
	f, err := os.Open(paths.LogFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ConfigShow renders the current configuration as indented JSON.
func ConfigShow(paths statepaths.Paths) (string, error) {
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ConfigSet persists a single key=value override, per §6's `config set
// <key> <value>` command.
func ConfigSet(paths statepaths.Paths, key, value string) error {
	store, err := config.NewStore(paths.ConfigFile)
	if err != nil {
		return err
	}
	return store.SetKey(key, value)
}

// Help returns the usage text printed by the `help` command and by any
// unrecognized subcommand.
func Help() string {
	var b strings.Builder
	b.WriteString("usage: autoresume <command> [args]\n\n")
	b.WriteString("commands:\n")
	b.WriteString("  start, monitor        launch the supervisor in the foreground\n")
	b.WriteString("  stop                  stop a running supervisor\n")
	b.WriteString("  status                print whether the supervisor is running and the queue summary\n")
	b.WriteString("  restart               stop then start\n")
	b.WriteString("  test <seconds>        run a synthetic countdown and delivery\n")
	b.WriteString("  reset                 clear the queue document\n")
	b.WriteString("  logs [--lines N]      tail the log file\n")
	b.WriteString("  config                show the current configuration\n")
	b.WriteString("  config set <key> <v>  set a single configuration key\n")
	b.WriteString("  help                  print this message\n")
	return b.String()
}
