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

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Append an unknown key by hand.
	raw := `{"resume_prompt":"continue","totally_unknown_key":123,"check_interval_ms":5000,"post_reset_delay_sec":10,"max_retries":4,"retry_backoff_sec":[10,20,40,60],"verification_window_sec":90,"active_verification_timeout_ms":30000,"active_verification_poll_ms":2000,"transcript_polling_enabled":true,"max_log_size_mb":1,"memory_ceiling_mb":200}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load with unknown key: %v", err)
	}
	if cfg.CheckIntervalMS != 5000 {
		t.Fatalf("expected known keys still parsed, got %+v", cfg)
	}
}

func TestLoad_PartialOverrideKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"resume_prompt":"go on"}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResumePrompt != "go on" {
		t.Fatalf("expected override applied, got %q", cfg.ResumePrompt)
	}
	if cfg.MaxRetries != Default().MaxRetries {
		t.Fatalf("expected default MaxRetries retained, got %d", cfg.MaxRetries)
	}
}

func TestSetKey_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SetKey("max_retries", "7"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if s.Get().MaxRetries != 7 {
		t.Fatalf("expected in-memory update, got %d", s.Get().MaxRetries)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if reloaded.Get().MaxRetries != 7 {
		t.Fatalf("expected persisted value 7, got %d", reloaded.Get().MaxRetries)
	}
}

func TestSetKey_UnknownKeyErrors(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SetKey("does_not_exist", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate_RejectsEmptyBackoff(t *testing.T) {
	cfg := Default()
	cfg.RetryBackoffSec = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty retry_backoff_sec")
	}
}
