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

package delivery

import "time"

// Keystroke is one element of the ordered sequence every tier must send:
// ESC to dismiss any interactive menu, Ctrl+U to clear a partial line, the
// literal resume prompt, then Enter.
type Keystroke struct {
	// Literal, if non-empty, is sent as-is (the resume prompt text).
	Literal string
	// Control names a non-printable key ("Escape", "Ctrl+U", "Enter") for
	// tiers that need a symbolic name rather than raw bytes.
	Control string
}

// InterKeystrokeDelay is the minimum pause enforced between sequence
// elements, giving the target terminal time to react to ESC/Ctrl+U before
// the literal prompt text arrives.
const InterKeystrokeDelay = 80 * time.Millisecond

// Sequence builds the ordered keystroke sequence for prompt, shared by every
// tier so the ESC / Ctrl+U / prompt / Enter ordering lives in exactly one
// place.
func Sequence(prompt string) []Keystroke {
	return []Keystroke{
		{Control: "Escape"},
		{Control: "Ctrl+U"},
		{Literal: prompt},
		{Control: "Enter"},
	}
}

// RawBytes renders the sequence as raw control/literal bytes for tiers (like
// the PTY tier) that write directly to a device rather than invoking a
// command with symbolic key names.
func RawBytes(prompt string) []byte {
	var b []byte
	b = append(b, 0x1b)       // ESC
	b = append(b, 0x15)       // Ctrl+U (NAK)
	b = append(b, []byte(prompt)...)
	b = append(b, '\r')       // Enter
	return b
}
