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

package audit

import (
	"context"
	"testing"
	"time"

	"autoresume/internal/queue"
)

func TestNoopSink_NeverErrors(t *testing.T) {
	var s Sink = NoopSink{}
	if err := s.Record(context.Background(), queue.RateLimitEvent{ID: "x"}, "tmux"); err != nil {
		t.Fatalf("NoopSink.Record: %v", err)
	}
}

func TestNoopLock_AlwaysGranted(t *testing.T) {
	var l Lock = NoopLock{}
	held, err := l.TryAcquire(context.Background(), "singleton", time.Second)
	if err != nil || !held {
		t.Fatalf("expected NoopLock to always grant, held=%v err=%v", held, err)
	}
	if err := l.Release(context.Background(), "singleton"); err != nil {
		t.Fatalf("NoopLock.Release: %v", err)
	}
}
