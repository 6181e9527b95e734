//go:build linux

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

package procutil

import (
	"os/exec"
	"strconv"
	"strings"
)

// windowsForPID shells out to xdotool, the same X11 utility nativetier uses
// for keystroke injection, to list windows owned by pid. Returns nil (not
// an error) if xdotool is absent or the query comes back empty -- the
// caller's discovery algorithm treats that as "try the next step".
func windowsForPID(pid int) []WindowID {
	if _, err := exec.LookPath("xdotool"); err != nil {
		return nil
	}
	out, err := exec.Command("xdotool", "search", "--pid", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}
	var ids []WindowID
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, WindowID(line))
		}
	}
	return ids
}
