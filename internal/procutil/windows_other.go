//go:build !linux

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

// windowsForPID is a no-op on platforms where nativetier discovers its
// target window through a different mechanism (the macOS accessibility
// bridge and the Windows foreground-window API each do their own lookup
// rather than going through a PID-to-window index).
func windowsForPID(pid int) []WindowID {
	return nil
}
