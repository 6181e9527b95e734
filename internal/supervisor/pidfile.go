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

// Package supervisor owns the single long-running process's lifecycle:
// the PID file single-instance guard, heartbeat, memory watchdog,
// crash-loop throttle, log rotation, and signal-driven graceful shutdown
// (§4.9). It wires together watcher, scheduler, delivery, and verify but
// contains none of their logic itself.
package supervisor

import (
	"errors"
	"os"
	"strconv"

	"autoresume/internal/statepaths"
)

// ErrSingleInstanceConflict is returned by AcquirePIDFile when another live
// process already holds the PID file.
var ErrSingleInstanceConflict = errors.New("supervisor: another instance is already running")

// AcquirePIDFile writes the current process's PID to path, refusing if an
// existing PID file names a still-live process. A stale PID file (the
// named process is gone) is removed and startup continues, per §4.9.
func AcquirePIDFile(path string) error {
	if existing, err := statepaths.ReadPID(path); err == nil {
		if processAlive(existing) {
			return ErrSingleInstanceConflict
		}
		// Stale: the file names a process that no longer exists.
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReleasePIDFile removes path, best-effort (called during graceful
// shutdown; a failure here must not block exit).
func ReleasePIDFile(path string) error {
	return os.Remove(path)
}

// ReadPID returns the PID recorded in path.
func ReadPID(path string) (int, error) {
	return statepaths.ReadPID(path)
}

