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

// Package ptytier implements Tier 2 (§4.7.2): delivery by writing directly
// to the pseudo-terminal device backing a session's stdin. Like Tier 1,
// this works even when the display is locked; unlike Tier 1 it needs no
// multiplexer, only a writable PTY device.
package ptytier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"autoresume/internal/delivery"
)

// Tier implements delivery.Tier by opening the PTY device behind a
// session's file descriptor 0 and writing the keystroke sequence to it.
type Tier struct {
	interKeystroke time.Duration
}

// New constructs a PTY delivery tier. Absent on Windows, which has no
// /dev/pts equivalent reachable this way; callers building the tier list
// should exclude this tier with a runtime.GOOS check.
func New() *Tier {
	return &Tier{interKeystroke: delivery.InterKeystrokeDelay}
}

func (t *Tier) Name() string { return "pty" }

// Available reports whether target.SessionPID's stdin resolves to a
// writable /dev/pts device.
func (t *Tier) Available(ctx context.Context, target delivery.Target) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	if target.SessionPID == nil {
		return false
	}
	device, ok := resolveDevice(*target.SessionPID)
	if !ok {
		return false
	}
	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Send opens the device and writes the translated byte sequence: control
// characters for ESC/Ctrl+U, literal bytes for the prompt, \r for Enter.
func (t *Tier) Send(ctx context.Context, target delivery.Target, prompt string) error {
	if target.SessionPID == nil {
		return fmt.Errorf("ptytier: no session_pid to resolve a device from")
	}
	device, ok := resolveDevice(*target.SessionPID)
	if !ok {
		return fmt.Errorf("ptytier: could not resolve a pty device for pid %d", *target.SessionPID)
	}

	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("ptytier: open %s: %w", device, err)
	}
	defer f.Close()

	for _, b := range delivery.RawBytes(prompt) {
		if _, err := f.Write([]byte{b}); err != nil {
			return fmt.Errorf("ptytier: write: %w", err)
		}
		time.Sleep(t.interKeystroke)
	}
	return nil
}

// resolveDevice follows /proc/<pid>/fd/0 to the device it points at and
// confirms it's a /dev/pts/<N> entry. On non-Linux unix systems without
// /proc, this always fails and the tier reports unavailable (platform-
// specific resolution is left to a future build-tagged variant -- Tier 1
// and Tier 3 remain available there).
func resolveDevice(pid int) (string, bool) {
	fdPath := fmt.Sprintf("/proc/%d/fd/0", pid)
	target, err := os.Readlink(fdPath)
	if err != nil {
		return "", false
	}
	if filepath.Dir(target) != "/dev/pts" {
		return "", false
	}
	return target, true
}
