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
	"fmt"
	"strconv"
	"strings"
)

// setField applies a string value (as received from the `config set <key>
// <value>` command line) to the named field, with minimal type coercion.
func setField(cfg *Config, key, value string) error {
	switch key {
	case "resume_prompt":
		cfg.ResumePrompt = value
	case "check_interval_ms":
		return setInt(&cfg.CheckIntervalMS, value)
	case "post_reset_delay_sec":
		return setInt(&cfg.PostResetDelaySec, value)
	case "max_retries":
		return setInt(&cfg.MaxRetries, value)
	case "retry_backoff_sec":
		parts := strings.Split(value, ",")
		backoff := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("config: retry_backoff_sec must be comma-separated ints: %w", err)
			}
			backoff = append(backoff, n)
		}
		cfg.RetryBackoffSec = backoff
	case "verification_window_sec":
		return setInt(&cfg.VerificationWindowSec, value)
	case "active_verification_timeout_ms":
		return setInt(&cfg.ActiveVerificationTimeoutMS, value)
	case "active_verification_poll_ms":
		return setInt(&cfg.ActiveVerificationPollMS, value)
	case "transcript_polling_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: transcript_polling_enabled must be a bool: %w", err)
		}
		cfg.TranscriptPollingEnabled = b
	case "max_log_size_mb":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("config: max_log_size_mb must be a number: %w", err)
		}
		cfg.MaxLogSizeMB = f
	case "memory_ceiling_mb":
		return setInt(&cfg.MemoryCeilingMB, value)
	case "local_server_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: local_server_enabled must be a bool: %w", err)
		}
		cfg.LocalServerEnabled = b
	case "local_server_addr":
		cfg.LocalServerAddr = value
	case "metrics_addr":
		cfg.MetricsAddr = value
	case "audit_backend":
		if value != "none" && value != "postgres" {
			return fmt.Errorf("config: audit_backend must be 'none' or 'postgres', got %q", value)
		}
		cfg.AuditBackend = value
	case "audit_postgres_dsn":
		cfg.AuditPostgresDSN = value
	case "distributed_lock_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: distributed_lock_enabled must be a bool: %w", err)
		}
		cfg.DistributedLockEnabled = b
	case "distributed_lock_redis_addr":
		cfg.DistributedLockRedisAddr = value
	default:
		return fmt.Errorf("config: unknown key %q", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: expected integer, got %q: %w", value, err)
	}
	*dst = n
	return nil
}

// Validate reports whether cfg's values are internally consistent enough to
// run the supervisor; `start` calls it before constructing the supervisor.
func Validate(cfg Config) error {
	if cfg.ResumePrompt == "" {
		return fmt.Errorf("config: resume_prompt must not be empty")
	}
	if cfg.CheckIntervalMS <= 0 {
		return fmt.Errorf("config: check_interval_ms must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative")
	}
	if len(cfg.RetryBackoffSec) == 0 {
		return fmt.Errorf("config: retry_backoff_sec must not be empty")
	}
	for _, b := range cfg.RetryBackoffSec {
		if b < 0 {
			return fmt.Errorf("config: retry_backoff_sec entries must not be negative")
		}
	}
	if cfg.VerificationWindowSec <= 0 {
		return fmt.Errorf("config: verification_window_sec must be positive")
	}
	if cfg.MemoryCeilingMB <= 0 {
		return fmt.Errorf("config: memory_ceiling_mb must be positive")
	}
	if cfg.AuditBackend != "none" && cfg.AuditBackend != "postgres" {
		return fmt.Errorf("config: audit_backend must be 'none' or 'postgres', got %q", cfg.AuditBackend)
	}
	if cfg.AuditBackend == "postgres" && cfg.AuditPostgresDSN == "" {
		return fmt.Errorf("config: audit_postgres_dsn is required when audit_backend is 'postgres'")
	}
	if cfg.DistributedLockEnabled && cfg.DistributedLockRedisAddr == "" {
		return fmt.Errorf("config: distributed_lock_redis_addr is required when distributed_lock_enabled is true")
	}
	return nil
}
