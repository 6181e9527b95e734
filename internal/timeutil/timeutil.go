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

// Package timeutil resolves the human time expressions the analyzer extracts
// ("8pm" in "Asia/Dhaka") into absolute UTC instants. It leans on the Go
// standard library's IANA tzdata support rather than any hand-rolled offset
// table, per the redesign guidance in the specification this package
// implements: the legacy source hardcodes timezone offsets and breaks around
// DST transitions.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimezone is returned when the named zone cannot be loaded from
// the system (or embedded) tzdata.
var ErrInvalidTimezone = errors.New("timeutil: invalid timezone")

// ErrInvalidTimeFormat is returned when the hour/minute/meridiem components
// don't describe a valid wall-clock time.
var ErrInvalidTimeFormat = errors.New("timeutil: invalid time format")

// Meridiem distinguishes AM/PM for a 12-hour clock token.
type Meridiem int

const (
	AM Meridiem = iota
	PM
)

// WallClock is the parsed form of a token like "8pm" or "12:30am".
type WallClock struct {
	Hour     int // 1..12
	Minute   int // 0..59
	Meridiem Meridiem
}

// Validate checks the wall-clock components are in range for a 12-hour clock.
func (w WallClock) Validate() error {
	if w.Hour < 1 || w.Hour > 12 {
		return fmt.Errorf("%w: hour %d out of range 1-12", ErrInvalidTimeFormat, w.Hour)
	}
	if w.Minute < 0 || w.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidTimeFormat, w.Minute)
	}
	return nil
}

// hour24 converts the 12-hour wall clock to a 24-hour hour-of-day.
func (w WallClock) hour24() int {
	h := w.Hour % 12 // 12am/12pm both fold to 0
	if w.Meridiem == PM {
		h += 12
	}
	return h
}

// LoadZone loads the named IANA zone via time.LoadLocation, which consults
// the system tzdata (or the bundled copy linked in via time/tzdata when the
// build imports it). It never panics.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// Resolve computes the next occurrence of wall clock w in the named zone,
// relative to now. Algorithm: build today's date at the target wall-clock
// time in the zone; if that instant is already <= now, advance one day.
// This mirrors the spec's deadline arithmetic exactly, including the
// midnight-rollover boundary case (11:59pm local, reset token "12am" must
// resolve within the next minute, not 24 hours out).
func Resolve(w WallClock, zoneName string, now time.Time) (time.Time, error) {
	if err := w.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := LoadZone(zoneName)
	if err != nil {
		return time.Time{}, err
	}

	nowInZone := now.In(loc)
	h := w.hour24()
	candidate := time.Date(nowInZone.Year(), nowInZone.Month(), nowInZone.Day(), h, w.Minute, 0, 0, loc)

	if !candidate.After(nowInZone) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.UTC(), nil
}

// Remaining returns the duration between now and deadline. It does not clamp
// negative durations (a deadline already passed) so callers can detect and
// act on overdue events; Scheduler treats <= 0 as "fire immediately".
func Remaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}
