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

package nativetier

import (
	"os"
	"strconv"
	"strings"
)

// shellNames is the set of comm values counted as a "shell tab" for the
// tab-cycling rule in §4.7.3.
var shellNames = map[string]bool{
	"bash": true, "zsh": true, "fish": true, "sh": true, "dash": true,
}

// countShellChildren scans /proc for direct children of pid whose comm is a
// known shell.
func countShellChildren(pid int) int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		childPID, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ppid, comm, ok := statProc(childPID)
		if !ok || ppid != pid {
			continue
		}
		if shellNames[comm] {
			count++
		}
	}
	return count
}

// findProcessesByName scans /proc for processes whose comm contains
// substr, used to locate live assistant processes when no session_pid is
// available (step 2 of the §4.7.3 discovery order).
func findProcessesByName(substr string) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		_, comm, ok := statProc(pid)
		if ok && strings.Contains(comm, substr) {
			pids = append(pids, pid)
		}
	}
	return pids
}

// statProc reads /proc/<pid>/stat and returns (ppid, comm, ok).
func statProc(pid int) (int, string, bool) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, "", false
	}
	s := string(b)
	open := strings.IndexByte(s, '(')
	closeParen := strings.LastIndexByte(s, ')')
	if open == -1 || closeParen == -1 || closeParen <= open {
		return 0, "", false
	}
	comm := s[open+1 : closeParen]
	fields := strings.Fields(s[closeParen+2:])
	if len(fields) < 2 {
		return 0, "", false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", false
	}
	return ppid, comm, true
}
