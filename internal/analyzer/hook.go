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

package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
)

// HookInput is the payload an external tool (the assistant's own hook
// system) feeds to this analyzer on standard input when invoking it as a
// one-shot check, per the External Interface Layer contract.
type HookInput struct {
	TranscriptPath string `json:"transcript_path"`
	SessionID      string `json:"session_id"`
}

// AnalyzeHook reads a HookInput from r, analyzes the referenced transcript,
// and returns the result. It mirrors AnalyzeFile's contract: I/O and parse
// problems are reported as an error only when the hook payload itself is
// unusable (there's no transcript path to even attempt), never when the
// transcript scan itself fails.
func AnalyzeHook(r io.Reader) (*Result, error) {
	var in HookInput
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("analyzer: decode hook input: %w", err)
	}
	if in.TranscriptPath == "" {
		return nil, fmt.Errorf("analyzer: hook input missing transcript_path")
	}
	return AnalyzeFile(in.TranscriptPath)
}
