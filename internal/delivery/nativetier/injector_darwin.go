//go:build darwin

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
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"autoresume/internal/delivery"
	"autoresume/internal/procutil"
)

// darwinInjector drives the Accessibility/System Events scripting bridge
// via osascript. Each keystroke is its own osascript invocation (argv
// array, no generated shell) so failures are attributable to a single
// element of the sequence.
type darwinInjector struct{}

func newInjector() injector {
	return &darwinInjector{}
}

func (d *darwinInjector) available() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// inject ignores the windows hint (macOS addressing is by frontmost
// process, not an opaque window id) and drives whatever terminal process is
// frontmost, per §4.7.3.
func (d *darwinInjector) inject(ctx context.Context, windows []procutil.WindowID, sessionPID *int, prompt string) error {
	for _, ks := range delivery.Sequence(prompt) {
		script := scriptFor(ks)
		if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
			return fmt.Errorf("osascript: %w", err)
		}
		time.Sleep(interKeystroke)
	}
	return nil
}

func scriptFor(ks delivery.Keystroke) string {
	switch ks.Control {
	case "Escape":
		return `tell application "System Events" to key code 53`
	case "Ctrl+U":
		return `tell application "System Events" to keystroke "u" using control down`
	case "Enter":
		return `tell application "System Events" to key code 36`
	default:
		escaped := strings.ReplaceAll(ks.Literal, `"`, `\"`)
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	}
}
