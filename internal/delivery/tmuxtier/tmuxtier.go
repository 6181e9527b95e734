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

// Package tmuxtier implements Tier 1 (§4.7.1): delivery via a terminal
// multiplexer's send-keys command. This tier works even when the display is
// locked, which is its primary value over the GUI-injection tier.
package tmuxtier

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"autoresume/internal/delivery"
	"autoresume/internal/procutil"
)

// Tier implements delivery.Tier against a tmux-compatible multiplexer.
type Tier struct {
	// Binary is the multiplexer executable name, normally "tmux".
	Binary string
	// interKeystroke is the pause between send-keys invocations.
	interKeystroke time.Duration
}

// New constructs a tmux delivery tier.
func New() *Tier {
	return &Tier{Binary: "tmux", interKeystroke: delivery.InterKeystrokeDelay}
}

func (t *Tier) Name() string { return "tmux" }

// Available reports whether tmux is on PATH and target.SessionPID's
// ancestor chain resolves to a live pane.
func (t *Tier) Available(ctx context.Context, target delivery.Target) bool {
	if _, err := exec.LookPath(t.Binary); err != nil {
		return false
	}
	if target.SessionPID == nil {
		return false
	}
	_, ok := t.findPane(ctx, *target.SessionPID)
	return ok
}

// pane is one (pane_pid, session_name, pane_id) triple reported by tmux.
type pane struct {
	PID    int
	Target string // "<session>:<window>.<pane>" form tmux send-keys expects
}

// listPanes enumerates every pane across every session.
func (t *Tier) listPanes(ctx context.Context) ([]pane, error) {
	cmd := exec.CommandContext(ctx, t.Binary, "list-panes", "-a", "-F", "#{pane_pid} #{session_name}:#{window_index}.#{pane_index}")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tmuxtier: list-panes: %w", err)
	}

	var panes []pane
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		panes = append(panes, pane{PID: pid, Target: fields[1]})
	}
	return panes, nil
}

// findPane walks sessionPID's ancestor chain until one of its ancestors
// matches a pane_pid, per the discovery algorithm in §4.7.1.
func (t *Tier) findPane(ctx context.Context, sessionPID int) (pane, bool) {
	panes, err := t.listPanes(ctx)
	if err != nil || len(panes) == 0 {
		return pane{}, false
	}
	byPID := make(map[int]pane, len(panes))
	for _, p := range panes {
		byPID[p.PID] = p
	}

	for _, ancestor := range procutil.Ancestors(sessionPID) {
		if p, ok := byPID[ancestor]; ok {
			return p, true
		}
	}
	return pane{}, false
}

// Send delivers the keystroke sequence to the matched pane via send-keys,
// pausing between elements per the inter-keystroke minimum gap.
func (t *Tier) Send(ctx context.Context, target delivery.Target, prompt string) error {
	if target.SessionPID == nil {
		return fmt.Errorf("tmuxtier: no session_pid to resolve a pane from")
	}
	p, ok := t.findPane(ctx, *target.SessionPID)
	if !ok {
		return fmt.Errorf("tmuxtier: no pane found for session_pid %d", *target.SessionPID)
	}

	for _, ks := range delivery.Sequence(prompt) {
		if err := t.sendOne(ctx, p.Target, ks); err != nil {
			return err
		}
		time.Sleep(t.interKeystroke)
	}
	return nil
}

func (t *Tier) sendOne(ctx context.Context, paneTarget string, ks delivery.Keystroke) error {
	var args []string
	switch ks.Control {
	case "Escape":
		args = []string{"send-keys", "-t", paneTarget, "Escape"}
	case "Ctrl+U":
		args = []string{"send-keys", "-t", paneTarget, "C-u"}
	case "Enter":
		args = []string{"send-keys", "-t", paneTarget, "Enter"}
	default:
		args = []string{"send-keys", "-t", paneTarget, "-l", ks.Literal}
	}
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmuxtier: send-keys %v: %w", args, err)
	}
	return nil
}
