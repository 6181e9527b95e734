//go:build windows

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

// ancestors shells out to PowerShell's CIM process provider once per hop;
// Windows has no direct equivalent of reading a parent pid from a handle
// without a broader process-enumeration API than is worth wrapping here.
func ancestors(pid int) []int {
	chain := []int{pid}
	current := pid
	for i := 0; i < 64 && current > 1; i++ {
		ppid, ok := parentOf(current)
		if !ok {
			break
		}
		chain = append(chain, ppid)
		current = ppid
	}
	return chain
}

func parentOf(pid int) (int, bool) {
	script := "(Get-CimInstance Win32_Process -Filter \"ProcessId=" + strconv.Itoa(pid) + "\").ParentProcessId"
	out, err := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
	if err != nil {
		return 0, false
	}
	ppid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, false
	}
	return ppid, true
}
