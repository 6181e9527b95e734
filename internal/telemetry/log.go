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

// Package telemetry configures structured logging (zerolog, with TTY-aware
// coloring) and exposes Prometheus metrics for the supervisor's background
// activities, grounded in the same opt-in, hot-path-safe pattern the
// teacher's churn package uses: metrics are registered eagerly at package
// init so exposing them later is harmless, and every observer function is
// safe to call even when no /metrics endpoint is ever bound.
package telemetry

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure installs the global zerolog logger, writing to w (the rotated
// log file) and, if attached to a terminal, also to a colorized stderr
// console writer for interactive `start` invocations.
func Configure(w io.Writer, interactive bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	writers := []io.Writer{w}
	if interactive && isatty.IsTerminal(os.Stderr.Fd()) {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:     colorable.NewColorableStderr(),
			NoColor: false,
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

// RotatingWriter wraps an *os.File, rotating it in place every 100 writes
// if it has grown past maxSizeBytes: the current file is renamed to
// "<path>.1" (overwriting any previous one) and a fresh file is opened at
// path, per §4.9's log-rotation rule. maxSizeBytes of 0 disables rotation.
type RotatingWriter struct {
	mu          sync.Mutex
	f           *os.File
	path        string
	maxSizeBytes int64
	calls       uint64
}

// NewRotatingWriter opens path for appending, creating it if absent.
func NewRotatingWriter(path string) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RotatingWriter{f: f, path: path}, nil
}

// SetMaxSize configures the rotation threshold, in bytes.
func (r *RotatingWriter) SetMaxSize(maxSizeBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxSizeBytes = maxSizeBytes
}

func (r *RotatingWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.calls%100 == 0 && r.maxSizeBytes > 0 {
		if err := r.rotateIfOversizeLocked(); err != nil {
			// Rotation failure must not block logging; fall through to write.
			_ = err
		}
	}
	return r.f.Write(p)
}

func (r *RotatingWriter) rotateIfOversizeLocked() error {
	info, err := r.f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < r.maxSizeBytes {
		return nil
	}
	if err := r.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.f = f
	return nil
}

// Size returns the current log file size.
func (r *RotatingWriter) Size() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying file.
func (r *RotatingWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// Path returns the file's name.
func (r *RotatingWriter) Path() string { return r.path }
