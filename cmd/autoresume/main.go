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

// Command autoresume is the supervisor binary: it watches a Claude Code
// transcript for rate-limit messages, schedules an automatic resume once
// the limit clears, and delivers the resume keystrokes through whichever
// tier (tmux, PTY, or native GUI injection) can currently reach the
// session.
//
// Usage: autoresume <command> [args], where command is one of start,
// monitor, stop, status, restart, test, reset, logs, config, or help.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"autoresume/internal/api"
	"autoresume/internal/audit"
	"autoresume/internal/config"
	"autoresume/internal/queue"
	"autoresume/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Print(api.Help())
		os.Exit(0)
	}

	paths := supervisor.DefaultPaths(stateDir())
	if err := os.MkdirAll(stateDir(), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "autoresume: could not create state dir: %v\n", err)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "start", "monitor":
		err = runStart(paths)
	case "stop":
		err = api.Stop(paths)
	case "status":
		err = runStatus(paths)
	case "restart":
		if serr := api.Stop(paths); serr != nil {
			log.Warn().Err(serr).Msg("autoresume: stop before restart reported an error")
		}
		err = runStart(paths)
	case "test":
		err = runTest(paths, args)
	case "reset":
		err = api.Reset(paths)
	case "logs":
		err = runLogs(paths, args)
	case "config":
		err = runConfig(paths, args)
	case "help", "-h", "--help":
		fmt.Print(api.Help())
	default:
		fmt.Fprintf(os.Stderr, "autoresume: unknown command %q\n\n", cmd)
		fmt.Print(api.Help())
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "autoresume: %v\n", err)
		os.Exit(1)
	}
}

// stateDir returns the per-user directory that holds every file the
// Supervisor owns, per §6's filesystem layout.
func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".autoresume")
}

// buildDependencies constructs the optional audit sink and distributed
// lock named by cfg, falling back to the no-op defaults (supervisor.New
// already does that for a zero Dependencies) when a backend isn't
// configured. The sink and lock are process-lifetime: nothing here closes
// the underlying connections, since the supervisor runs until the process
// exits.
func buildDependencies(cfg config.Config) (supervisor.Dependencies, error) {
	var deps supervisor.Dependencies

	switch cfg.AuditBackend {
	case "postgres":
		sink, err := audit.OpenPostgresSink(cfg.AuditPostgresDSN)
		if err != nil {
			return deps, fmt.Errorf("open audit postgres sink: %w", err)
		}
		deps.Sink = sink
	case "none", "":
	default:
		return deps, fmt.Errorf("unknown audit_backend %q", cfg.AuditBackend)
	}

	if cfg.DistributedLockEnabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.DistributedLockRedisAddr})
		deps.Lock = audit.NewRedisLock(client, strconv.Itoa(os.Getpid()))
	}

	return deps, nil
}

func runStart(paths supervisor.Paths) error {
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := buildDependencies(cfg)
	if err != nil {
		return fmt.Errorf("configure audit backend: %w", err)
	}

	sup, err := supervisor.New(paths, cfg, deps)
	if err != nil {
		return fmt.Errorf("construct supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info().Msg("autoresume: signal received, shutting down")
		cancel()
	}()

	return sup.Run(ctx)
}

func runStatus(paths supervisor.Paths) error {
	report, err := api.Status(paths)
	if err != nil {
		return err
	}
	if report.Running {
		fmt.Printf("running (pid %d, heartbeat age %s)\n", report.PID, report.HeartbeatAge)
	} else {
		fmt.Println("not running")
	}
	fmt.Printf("queue depth: %d\n", report.QueueDepth)
	if report.NextStatus != "" {
		fmt.Printf("next event: %s at %s\n", report.NextStatus, report.NextResetTime.Format(time.RFC3339))
	}
	return nil
}

func runTest(paths supervisor.Paths, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: autoresume test <seconds>")
	}
	seconds, err := time.ParseDuration(fs.Arg(0) + "s")
	if err != nil {
		return fmt.Errorf("invalid seconds argument: %w", err)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return err
	}

	fmt.Printf("running a synthetic %s countdown and delivery attempt...\n", seconds)
	ctx, cancel := context.WithTimeout(context.Background(), seconds+time.Duration(cfg.MaxRetries+1)*30*time.Second)
	defer cancel()

	deps, err := buildDependencies(cfg)
	if err != nil {
		return fmt.Errorf("configure audit backend: %w", err)
	}

	sup, err := supervisor.New(paths, cfg, deps)
	if err != nil {
		return err
	}
	if _, err := queue.New(paths.QueueFile).Enqueue(queue.RateLimitEvent{
		ResetTime: time.Now().Add(seconds).UTC(),
		Timezone:  "UTC",
		Message:   "synthetic test countdown",
	}); err != nil {
		return fmt.Errorf("enqueue synthetic event: %w", err)
	}
	go func() {
		<-ctx.Done()
	}()
	return sup.Run(ctx)
}

func runLogs(paths supervisor.Paths, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	lines := fs.Int("lines", 0, "number of trailing lines to print (0 = all)")
	fs.Parse(args)

	out, err := api.Logs(paths, *lines)
	if err != nil {
		return err
	}
	for _, line := range out {
		fmt.Println(line)
	}
	return nil
}

func runConfig(paths supervisor.Paths, args []string) error {
	if len(args) == 0 {
		out, err := api.ConfigShow(paths)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	if args[0] == "set" {
		if len(args) != 3 {
			return fmt.Errorf("usage: autoresume config set <key> <value>")
		}
		return api.ConfigSet(paths, args[1], args[2])
	}
	return fmt.Errorf("usage: autoresume config [set <key> <value>]")
}
