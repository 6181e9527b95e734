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
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"autoresume/internal/delivery"
	"autoresume/internal/procutil"
)

// linuxInjector drives xdotool, which uses the X test extension to inject
// synthetic keystrokes into the X input stream -- the spec's requirement
// that injection NOT use the send-event path many terminal emulators
// silently ignore. xdotool's default key/type commands already go through
// XTEST, so no extra flag is needed.
type linuxInjector struct {
	binary string
}

func newInjector() injector {
	return &linuxInjector{binary: "xdotool"}
}

func (l *linuxInjector) available() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// inject finds a target window (falling back through the live-assistant
// process scan and terminal-class search when windows is empty), saves the
// currently focused window, cycles through each shell-tab child injecting
// the sequence, then restores focus.
func (l *linuxInjector) inject(ctx context.Context, windows []procutil.WindowID, sessionPID *int, prompt string) error {
	if len(windows) == 0 {
		windows = l.discoverByAssistantProcess(ctx)
	}
	if len(windows) == 0 {
		windows = l.discoverByTerminalClass(ctx)
	}
	if len(windows) == 0 {
		return fmt.Errorf("no X window discovered for this target")
	}
	win := windows[0]

	original, _ := l.activeWindow(ctx)
	defer func() {
		if original != "" {
			_ = exec.CommandContext(ctx, l.binary, "windowactivate", original).Run()
		}
	}()

	tabs := l.tabCount(win)
	for tab := 0; tab < tabs; tab++ {
		if err := l.injectSequence(ctx, win, prompt); err != nil {
			return err
		}
		if tab < tabs-1 {
			if err := exec.CommandContext(ctx, l.binary, "key", "--window", string(win), "ctrl+Next").Run(); err != nil {
				return fmt.Errorf("tab cycle: %w", err)
			}
		}
	}
	return nil
}

func (l *linuxInjector) injectSequence(ctx context.Context, win procutil.WindowID, prompt string) error {
	for _, ks := range delivery.Sequence(prompt) {
		var args []string
		switch ks.Control {
		case "Escape":
			args = []string{"key", "--window", string(win), "Escape"}
		case "Ctrl+U":
			args = []string{"key", "--window", string(win), "ctrl+u"}
		case "Enter":
			args = []string{"key", "--window", string(win), "Return"}
		default:
			args = []string{"type", "--window", string(win), "--", ks.Literal}
		}
		if err := exec.CommandContext(ctx, l.binary, args...).Run(); err != nil {
			return fmt.Errorf("xdotool %v: %w", args, err)
		}
		time.Sleep(interKeystroke)
	}
	return nil
}

func (l *linuxInjector) activeWindow(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, l.binary, "getactivewindow").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// tabCount assumes one tab per direct shell child of the window's owning
// process, per §4.7.3's tab-cycling rule. Falls back to 1 (no cycling) if
// the window's PID can't be resolved.
func (l *linuxInjector) tabCount(win procutil.WindowID) int {
	out, err := exec.Command(l.binary, "getwindowpid", string(win)).Output()
	if err != nil {
		return 1
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 1
	}
	shells := countShellChildren(pid)
	if shells < 1 {
		return 1
	}
	return shells
}

// discoverByAssistantProcess enumerates live assistant processes by
// command-name pattern and walks each parent chain for a window, per step 2
// of the discovery order.
func (l *linuxInjector) discoverByAssistantProcess(ctx context.Context) []procutil.WindowID {
	pids := findProcessesByName("claude")
	for _, pid := range pids {
		for _, ancestor := range procutil.Ancestors(pid) {
			if wins := procutil.WindowsForPID(ancestor); len(wins) > 0 {
				return wins
			}
		}
	}
	return nil
}

// terminalClasses is the fixed list of terminal emulator X window classes
// searched as the last-resort discovery step.
var terminalClasses = []string{"gnome-terminal", "konsole", "xterm", "alacritty", "kitty", "foot"}

func (l *linuxInjector) discoverByTerminalClass(ctx context.Context) []procutil.WindowID {
	for _, class := range terminalClasses {
		out, err := exec.CommandContext(ctx, l.binary, "search", "--class", class).Output()
		if err != nil {
			continue
		}
		var wins []procutil.WindowID
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				wins = append(wins, procutil.WindowID(line))
			}
		}
		if len(wins) > 0 {
			return wins
		}
	}
	return nil
}
