// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lintworker/src/config"
	"lintworker/src/execution"
	"lintworker/src/logging"
	"lintworker/src/model"
	"lintworker/src/notify"
	"lintworker/src/processor"
	"lintworker/src/sink"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Error loading configuration: %v", err))
	}

	// Setup Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := logging.SetupOTelSDK(context.Background())
	if err != nil {
		panic(fmt.Sprintf("failed to setup OTel SDK: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown error: %v\n", err)
		}
	}()

	workerID := uuid.New().String()
	logging.Log(fmt.Sprintf("Starting worker with UUID: %s", workerID), slog.LevelInfo)
	stats := logging.NewWorkerStats(workerID)

	runner := &execution.Dispatcher{Local: execution.NewLocalRunner(cfg.MaxBuffer)}
	if cfg.UseDocker && cfg.DockerAPI {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logging.Log(fmt.Sprintf("Docker client unavailable, using the docker CLI: %v", err), slog.LevelWarn)
		} else {
			defer cli.Close()
			runner.Container = execution.NewDockerRunner(cli, cfg.MaxBuffer)
		}
	}

	var store sink.Store = sink.NewMemory()
	var db *sql.DB
	if cfg.DB.Enabled() {
		db, err = sql.Open("postgres", cfg.DB.DSN())
		if err != nil {
			panic(err)
		}
		defer db.Close()

		pg := sink.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			panic(err)
		}
		store = pg
	}

	warnings := notify.NewChannel(64, 100)
	linter := processor.NewLinter(cfg.Resolve(nil), runner, store, warnings,
		processor.WithStats(stats),
		processor.WithContext(ctx),
	)
	defer linter.Close()

	go func() {
		if err := StartAPIServer(ctx, cfg.APIPort, NewAPIServer(linter, store, stats, warnings)); err != nil {
			logging.Log(err.Error(), slog.LevelError)
			stop()
		}
	}()

	// Setup PostgreSQL Listener
	var notifications <-chan *pq.Notification
	var listener *pq.Listener
	if cfg.DB.Enabled() {
		reportProblem := func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logging.Log(fmt.Sprintf("Listener error: %v", err), slog.LevelError)
			}
		}
		listener = pq.NewListener(cfg.DB.DSN(), 10*time.Second, time.Minute, reportProblem)
		if err := listener.Listen(cfg.ListenChannel); err != nil {
			panic(err)
		}
		defer listener.Close()
		notifications = listener.Notify
	}

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	warningCounter, _ := logging.InitializeFloatCounter("worker_warnings_total", "Number of warnings reported to the user", "Warning")

	logging.Log("Worker started. Waiting for documents (HTTP + LISTEN/NOTIFY)...", slog.LevelInfo)

	for {
		select {
		case <-ctx.Done():
			logging.Log("Shutting down worker gracefully...", slog.LevelInfo)
			return
		case <-reload:
			next, err := config.Load()
			if err != nil {
				logging.Log(fmt.Sprintf("Error reloading configuration: %v", err), slog.LevelError)
				continue
			}
			linter.SetConfig(next.Resolve(nil))
			logging.Log("Configuration reloaded", slog.LevelInfo)
		case n := <-notifications:
			if n == nil {
				// connection was re-established; notifications may have been lost
				continue
			}
			doc, err := documentFromPayload(n.Extra, os.ReadFile)
			if err != nil {
				logging.Log(fmt.Sprintf("Error handling notification: %v", err), slog.LevelError)
				continue
			}
			if _, err := linter.Execute(doc, nil); err != nil {
				logging.Log(fmt.Sprintf("Ignoring notification for %s: %v", doc.Path, err), slog.LevelWarn)
			}
		case <-warnings.C():
			if warningCounter != nil {
				warningCounter.Add(ctx, 1)
			}
		case <-ticker.C:
			if listener != nil {
				if err := listener.Ping(); err != nil {
					logging.Log(fmt.Sprintf("Listener ping failed: %v", err), slog.LevelWarn)
				}
			}
		}
	}
}

var errEmptyPath = errors.New("notification has no path")

// documentFromPayload decodes a {"path","language_id"} notification and
// reads the document text from disk.
func documentFromPayload(payload string, readFile func(string) ([]byte, error)) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return doc, fmt.Errorf("decode payload: %w", err)
	}
	if doc.Path == "" {
		return doc, errEmptyPath
	}
	text, err := readFile(doc.Path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", doc.Path, err)
	}
	doc.Text = string(text)
	return doc, nil
}
