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

import (
	"runtime"
	"time"

	"autoresume/internal/telemetry"
)

// MemoryWatchdog samples resident memory on an interval and reports
// whether the process has exceeded its configured ceiling. Sampling uses
// runtime.MemStats rather than an OS-specific RSS reading, the same
// approach the rate limiter's own soak tests use to track heap growth —
// there is no portable RSS library in the dependency set, and MemStats.Sys
// (the memory reserved from the OS) is a reasonable proxy for resident
// size without shelling out per platform.
type MemoryWatchdog struct {
	ceilingBytes uint64
	interval     time.Duration
	onExceeded   func(sampledBytes uint64)
	stopChan     chan struct{}
	done         chan struct{}
}

// NewMemoryWatchdog returns a watchdog that calls onExceeded once
// resident memory samples at or above ceilingMB. A non-positive interval
// defaults to 60 seconds, per §4.9.
func NewMemoryWatchdog(ceilingMB int, interval time.Duration, onExceeded func(sampledBytes uint64)) *MemoryWatchdog {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &MemoryWatchdog{
		ceilingBytes: uint64(ceilingMB) * 1024 * 1024,
		interval:     interval,
		onExceeded:   onExceeded,
	}
}

// Start begins sampling in the background.
func (w *MemoryWatchdog) Start() {
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopChan:
				return
			case <-ticker.C:
				w.check()
			}
		}
	}()
}

// Stop halts background sampling.
func (w *MemoryWatchdog) Stop() {
	if w.stopChan == nil {
		return
	}
	close(w.stopChan)
	<-w.done
}

// Sample returns the current resident-memory proxy, in bytes.
func (w *MemoryWatchdog) Sample() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}

func (w *MemoryWatchdog) check() {
	sampled := w.Sample()
	telemetry.SetMemoryRSSBytes(float64(sampled))
	if w.ceilingBytes > 0 && sampled >= w.ceilingBytes && w.onExceeded != nil {
		w.onExceeded(sampled)
	}
}
