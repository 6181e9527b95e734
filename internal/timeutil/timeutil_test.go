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

package timeutil

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s not available in this environment: %v", name, err)
	}
	return loc
}

func TestResolve_AdvancesToNextDayWhenPast(t *testing.T) {
	loc := mustLoc(t, "Asia/Dhaka")
	// now = 9pm Dhaka time; target 8pm has already passed today.
	now := time.Date(2026, 3, 1, 21, 0, 0, 0, loc).UTC()

	got, err := Resolve(WallClock{Hour: 8, Minute: 0, Meridiem: PM}, "Asia/Dhaka", now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantLocal := time.Date(2026, 3, 2, 20, 0, 0, 0, loc)
	if !got.Equal(wantLocal.UTC()) {
		t.Fatalf("got %v, want %v", got, wantLocal.UTC())
	}
}

func TestResolve_SameDayWhenStillAhead(t *testing.T) {
	loc := mustLoc(t, "Asia/Dhaka")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, loc).UTC()

	got, err := Resolve(WallClock{Hour: 8, Minute: 0, Meridiem: PM}, "Asia/Dhaka", now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantLocal := time.Date(2026, 3, 1, 20, 0, 0, 0, loc)
	if !got.Equal(wantLocal.UTC()) {
		t.Fatalf("got %v, want %v", got, wantLocal.UTC())
	}
}

// TestResolve_MidnightRolloverIsNearFuture is the boundary behavior called out
// by the specification: at 11:59pm local with a reset token of 12am, the
// resolved instant must land within the next minute, not 24 hours later.
func TestResolve_MidnightRolloverIsNearFuture(t *testing.T) {
	loc := mustLoc(t, "Asia/Dhaka")
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, loc)

	got, err := Resolve(WallClock{Hour: 12, Minute: 0, Meridiem: AM}, "Asia/Dhaka", now.UTC())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	remaining := Remaining(got, now.UTC())
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("expected remaining in (0, 1m], got %v", remaining)
	}
}

func TestResolve_InvalidTimezone(t *testing.T) {
	_, err := Resolve(WallClock{Hour: 8, Minute: 0, Meridiem: PM}, "Not/AZone", time.Now())
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestWallClock_Validate(t *testing.T) {
	cases := []struct {
		w       WallClock
		wantErr bool
	}{
		{WallClock{Hour: 12, Minute: 0, Meridiem: AM}, false},
		{WallClock{Hour: 1, Minute: 59, Meridiem: PM}, false},
		{WallClock{Hour: 0, Minute: 0, Meridiem: AM}, true},
		{WallClock{Hour: 13, Minute: 0, Meridiem: AM}, true},
		{WallClock{Hour: 5, Minute: 60, Meridiem: AM}, true},
	}
	for _, c := range cases {
		err := c.w.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", c.w, err, c.wantErr)
		}
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := now.Add(5 * time.Second)
	if got := Remaining(deadline, now); got != 5*time.Second {
		t.Fatalf("got %v, want 5s", got)
	}
}
