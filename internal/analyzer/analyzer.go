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

// Package analyzer scans session transcripts (newline-delimited JSON) for
// rate-limit sentinels and extracts the structured {reset_time, timezone,
// message} the rest of the supervisor acts on. It never reads a transcript
// whole into memory and never aborts a scan because of one bad line.
package analyzer

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"autoresume/internal/timeutil"

	"github.com/rs/zerolog/log"
)

// Result is the output contract: the detected event, or nil if nothing
// matched.
type Result struct {
	ResetTimeUTC time.Time
	Timezone     string
	RawMessage   string
}

// transcriptLine is the subset of an NDJSON transcript record this package
// cares about. Assistant transcript schemas vary across tools; we scan every
// plausible textual field rather than binding to one exact shape.
type transcriptLine struct {
	Message json.RawMessage `json:"message"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
}

var (
	// sentinelPattern matches any of the three rate-limit phrasings,
	// case-insensitively.
	sentinelPattern = regexp.MustCompile(`(?i)(hit your limit|rate limit exceeded|try again in)`)

	// resetPattern extracts the reset-time token. Both the ASCII apostrophe
	// (U+0027) and the curly right-single-quote (U+2019) in "You've" are
	// accepted, and the zone name is captured verbatim for IANA lookup.
	resetPattern = regexp.MustCompile(`(?i)resets?\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*\(([^)]+)\)`)
)

// AnalyzeFile reads path line by line and returns the first matching
// rate-limit event, or (nil, nil) if none is found. I/O errors (file
// missing/unreadable) are logged and swallowed: the analyzer never raises
// for that condition, per the output contract.
func AnalyzeFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("transcript_path", path).Msg("analyzer: transcript unreadable")
		return nil, nil
	}
	defer f.Close()
	return scan(f, path)
}

// scan performs the actual line-by-line detection. Shared by AnalyzeFile and
// tests so behavior on a missing trailing newline is exercised directly.
func scan(r io.Reader, path string) (*Result, error) {
	sc := bufio.NewScanner(r)
	// Transcript lines can carry large tool outputs; grow the buffer well
	// past the default 64KiB so a single oversized line doesn't truncate
	// the scan.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		text, ok := extractText(line)
		if !ok {
			// Malformed JSON on this line: skip it, keep scanning.
			continue
		}
		if res := matchSentinel(text); res != nil {
			return res, nil
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Str("transcript_path", path).Msg("analyzer: scan error")
		return nil, nil
	}
	return nil, nil
}

// extractText pulls every plausible textual field out of one NDJSON record
// and concatenates them for sentinel matching. A parse failure on this one
// line returns ok=false so the caller skips it without aborting the scan.
func extractText(line []byte) (string, bool) {
	var rec transcriptLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString(rec.Text)
	sb.WriteByte('\n')
	appendRaw(&sb, rec.Message)
	appendRaw(&sb, rec.Content)
	return sb.String(), true
}

// appendRaw writes a raw JSON field's textual content if it's a string, or
// its raw bytes otherwise (covers transcripts that nest content as
// sub-objects/arrays of blocks containing a "text" field each).
func appendRaw(sb *strings.Builder, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		sb.WriteString(s)
		sb.WriteByte('\n')
		return
	}
	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		for _, b := range blocks {
			sb.WriteString(b.Text)
			sb.WriteByte('\n')
		}
		return
	}
	sb.Write(raw)
	sb.WriteByte('\n')
}

// matchSentinel applies the detection pattern to one record's text and, if
// it matches, attempts to extract the reset-time token. A sentinel match
// without a parseable reset token still yields no result (there is nothing
// to schedule against), consistent with the "option<...>" output contract.
func matchSentinel(text string) *Result {
	if !sentinelPattern.MatchString(text) {
		return nil
	}
	m := resetPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
	}
	meridiem := timeutil.AM
	if strings.EqualFold(m[3], "pm") {
		meridiem = timeutil.PM
	}
	zone := strings.TrimSpace(m[4])

	resetUTC, err := timeutil.Resolve(timeutil.WallClock{Hour: hour, Minute: minute, Meridiem: meridiem}, zone, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("zone", zone).Msg("analyzer: could not resolve reset time")
		return nil
	}
	return &Result{
		ResetTimeUTC: resetUTC,
		Timezone:     zone,
		RawMessage:   strings.TrimSpace(text),
	}
}
