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

// Package procutil exposes platform-abstracted process-tree and window
// lookups. The generic duck-typed "walk /proc, shell out to ps, or call an
// OS API" logic lives behind build-tagged files per platform; callers only
// see Ancestors and WindowsForPID.
package procutil

// Ancestors returns pid's ancestor chain, starting with pid itself and
// ordered "pid, then its parent, then its parent's parent, ...". The walk
// stops once it has appended a parent PID of 1 or lower (so PID 1 is
// included when reached), when a parent can't be read, or after 64 hops.
func Ancestors(pid int) []int {
	return ancestors(pid)
}

// WindowID identifies a platform window in whatever form the local window
// system uses (an X11 window ID, an accessibility element reference, etc.),
// opaque to callers outside this package and nativetier.
type WindowID string

// WindowsForPID returns the windows owned by pid itself, on platforms where
// window ownership can be queried this way.
// Returns an empty slice (never an error) on platforms without a concept of
// windows reachable from here (Tier 3 treats an empty result as "try the
// next discovery step").
func WindowsForPID(pid int) []WindowID {
	return windowsForPID(pid)
}
