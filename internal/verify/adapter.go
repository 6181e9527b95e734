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

package verify

import (
	"context"
	"os"
	"time"

	"autoresume/internal/delivery"
	"autoresume/internal/queue"
)

// Adapter implements delivery.Verifier, choosing active (transcript-based)
// or passive (queue-based) verification depending on whether the target
// carries a transcript path.
type Adapter struct {
	Store                 *queue.Store
	Timeout               time.Duration
	PollInterval          time.Duration
	VerificationWindowSec time.Duration
}

// Verify implements delivery.Verifier.
func (a *Adapter) Verify(ctx context.Context, target delivery.Target, sentAt time.Time) (bool, error) {
	if target.TranscriptPath == "" {
		result := VerifyPassive(ctx, PassiveInput{
			Store:                 a.Store,
			SentAt:                sentAt,
			VerificationWindowSec: a.VerificationWindowSec,
		})
		return result.Verified, nil
	}

	var baselineMTime time.Time
	var baselineSize int64
	if info, err := os.Stat(target.TranscriptPath); err == nil {
		baselineMTime = info.ModTime()
		baselineSize = info.Size()
	}

	result := Verify(ctx, Input{
		TranscriptPath: target.TranscriptPath,
		BaselineMTime:  baselineMTime,
		BaselineSize:   baselineSize,
		SentAt:         sentAt,
		Timeout:        a.Timeout,
		PollInterval:   a.PollInterval,
	})
	return result.Verified, nil
}
