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

// Package config loads and saves the supervisor's JSON configuration file,
// applying documented defaults for any key that is missing and ignoring any
// key it doesn't recognize, per the External Interface Layer contract.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Config mirrors the Configuration section of the data model (§3).
type Config struct {
	ResumePrompt               string  `json:"resume_prompt"`
	CheckIntervalMS            int     `json:"check_interval_ms"`
	PostResetDelaySec          int     `json:"post_reset_delay_sec"`
	MaxRetries                 int     `json:"max_retries"`
	RetryBackoffSec            []int   `json:"retry_backoff_sec"`
	VerificationWindowSec      int     `json:"verification_window_sec"`
	ActiveVerificationTimeoutMS int    `json:"active_verification_timeout_ms"`
	ActiveVerificationPollMS   int     `json:"active_verification_poll_ms"`
	TranscriptPollingEnabled   bool    `json:"transcript_polling_enabled"`
	MaxLogSizeMB               float64 `json:"max_log_size_mb"`
	MemoryCeilingMB            int     `json:"memory_ceiling_mb"`

	// LocalServerEnabled turns on the optional loopback-only HTTP/WebSocket
	// status server (§6's External Interface Layer). Disabled by default.
	LocalServerEnabled bool   `json:"local_server_enabled"`
	LocalServerAddr    string `json:"local_server_addr"`

	// MetricsAddr, when non-empty, starts a dedicated Prometheus /metrics
	// endpoint on its own loopback listener, mirroring the teacher's
	// opt-in churn_metrics/metrics_addr flag pair. Empty disables it.
	MetricsAddr string `json:"metrics_addr"`

	// AuditBackend selects the optional durable event-lifecycle sink:
	// "none" (default) or "postgres". AuditPostgresDSN is required when
	// AuditBackend is "postgres".
	AuditBackend     string `json:"audit_backend"`
	AuditPostgresDSN string `json:"audit_postgres_dsn"`

	// DistributedLockEnabled layers an optional Redis-backed advisory lock
	// on top of the PID-file single-instance guard (§4.9), useful when the
	// state directory lives on a shared/NFS home directory. The PID file
	// remains the primary, required mechanism either way.
	DistributedLockEnabled   bool   `json:"distributed_lock_enabled"`
	DistributedLockRedisAddr string `json:"distributed_lock_redis_addr"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		ResumePrompt:                "continue",
		CheckIntervalMS:             5000,
		PostResetDelaySec:           10,
		MaxRetries:                  4,
		RetryBackoffSec:             []int{10, 20, 40, 60},
		VerificationWindowSec:       90,
		ActiveVerificationTimeoutMS: 30000,
		ActiveVerificationPollMS:    2000,
		TranscriptPollingEnabled:    true,
		MaxLogSizeMB:                1,
		MemoryCeilingMB:             200,

		LocalServerEnabled: false,
		LocalServerAddr:    "127.0.0.1:8787",

		MetricsAddr: "",

		AuditBackend:     "none",
		AuditPostgresDSN: "",

		DistributedLockEnabled:   false,
		DistributedLockRedisAddr: "127.0.0.1:6379",
	}
}

// Load reads path with "missing keys take defaults, unknown keys are
// ignored" semantics: we unmarshal into a map first so we can tell a key
// was present versus zero-valued, then layer it over the defaults. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	apply := func(key string, dst interface{}) {
		v, ok := raw[key]
		if !ok {
			return
		}
		_ = json.Unmarshal(v, dst) // malformed individual key: keep default
	}
	apply("resume_prompt", &cfg.ResumePrompt)
	apply("check_interval_ms", &cfg.CheckIntervalMS)
	apply("post_reset_delay_sec", &cfg.PostResetDelaySec)
	apply("max_retries", &cfg.MaxRetries)
	apply("retry_backoff_sec", &cfg.RetryBackoffSec)
	apply("verification_window_sec", &cfg.VerificationWindowSec)
	apply("active_verification_timeout_ms", &cfg.ActiveVerificationTimeoutMS)
	apply("active_verification_poll_ms", &cfg.ActiveVerificationPollMS)
	apply("transcript_polling_enabled", &cfg.TranscriptPollingEnabled)
	apply("max_log_size_mb", &cfg.MaxLogSizeMB)
	apply("memory_ceiling_mb", &cfg.MemoryCeilingMB)
	apply("local_server_enabled", &cfg.LocalServerEnabled)
	apply("local_server_addr", &cfg.LocalServerAddr)
	apply("metrics_addr", &cfg.MetricsAddr)
	apply("audit_backend", &cfg.AuditBackend)
	apply("audit_postgres_dsn", &cfg.AuditPostgresDSN)
	apply("distributed_lock_enabled", &cfg.DistributedLockEnabled)
	apply("distributed_lock_redis_addr", &cfg.DistributedLockRedisAddr)

	return cfg, nil
}

// Save writes cfg to path via write-temp-then-rename, the same atomic
// pattern used throughout the queue document.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Store wraps a Config behind a mutex so that a Reload or SetKey (the
// `config set` command uses SetKey) is visible to concurrently running
// goroutines without them each re-reading the file. Reload runs only when
// called; no signal handler invokes it.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore loads path (or defaults, if absent) into a live Store.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the file from disk and swaps in the new configuration.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// SetKey validates and sets a single key by name (the `config set` command),
// persisting the result to disk.
func (s *Store) SetKey(key, value string) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if err := setField(&cfg, key, value); err != nil {
		return err
	}
	if err := Save(s.path, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
