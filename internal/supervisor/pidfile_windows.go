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

package supervisor

import "os"

// processAlive reports whether pid names a live process. Windows'
// os.Process.Signal only supports os.Kill, so unlike the unix zero-signal
// probe this opens a handle via FindProcess and relies on it failing for
// a PID that no longer exists. Good enough for a startup liveness check;
// a precise answer would need golang.org/x/sys/windows OpenProcess.
func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
