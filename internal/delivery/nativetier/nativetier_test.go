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
	"testing"

	"autoresume/internal/delivery"
)

func TestName(t *testing.T) {
	if New().Name() != "native" {
		t.Fatal("expected tier name \"native\"")
	}
}

func TestAvailable_ReflectsInjectorProbe(t *testing.T) {
	tier := New()
	// Whatever the platform injector reports, Available must not panic and
	// must agree with it directly (Tier 3's availability is purely "is the
	// platform tool present", since window discovery happens lazily).
	got := tier.Available(context.Background(), delivery.Target{})
	want := tier.inj.available()
	if got != want {
		t.Fatalf("Available() = %v, want %v (injector probe)", got, want)
	}
}
