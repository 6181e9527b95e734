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

// windowsInjector drives System.Windows.Forms.SendKeys through an
// out-of-process PowerShell script, per §4.7.3's Windows variant. Each
// keystroke is one PowerShell invocation, argv-array only.
type windowsInjector struct{}

func newInjector() injector {
	return &windowsInjector{}
}

func (w *windowsInjector) available() bool {
	_, err := exec.LookPath("powershell")
	return err == nil
}

func (w *windowsInjector) inject(ctx context.Context, windows []procutil.WindowID, sessionPID *int, prompt string) error {
	for _, ks := range delivery.Sequence(prompt) {
		sendKeys := sendKeysFor(ks)
		script := fmt.Sprintf(
			`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('%s')`,
			sendKeys,
		)
		cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("sendkeys: %w", err)
		}
		time.Sleep(interKeystroke)
	}
	return nil
}

// sendKeysFor renders one keystroke element in SendKeys' own escape syntax.
// Literal text has SendKeys' special characters (+^%~(){} ) escaped with
// braces.
func sendKeysFor(ks delivery.Keystroke) string {
	switch ks.Control {
	case "Escape":
		return "{ESC}"
	case "Ctrl+U":
		return "^u"
	case "Enter":
		return "{ENTER}"
	default:
		return escapeSendKeys(ks.Literal)
	}
}

func escapeSendKeys(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}':
			sb.WriteByte('{')
			sb.WriteRune(r)
			sb.WriteByte('}')
		case '\'':
			sb.WriteString("''")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
