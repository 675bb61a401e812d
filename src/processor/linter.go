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

// Package processor turns documents into published diagnostics. Analysis
// runs on the scheduler's single worker; rewrites run on the caller.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"lintworker/src/config"
	"lintworker/src/execution"
	"lintworker/src/logging"
	"lintworker/src/model"
	"lintworker/src/notify"
	"lintworker/src/output"
	"lintworker/src/scheduler"
	"lintworker/src/sink"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotRuby is returned for documents the analyzer does not handle.
	ErrNotRuby = errors.New("document is not a saved ruby file")
	// ErrCorrectionFailed wraps a rewrite run that exited abnormally.
	ErrCorrectionFailed = errors.New("auto-correction failed")
	// ErrNotConfigured means no analyzer command has been resolved.
	ErrNotConfigured = errors.New("no analyzer configured")
)

type Option func(*Linter)

// WithStats records run counters and the current run.
func WithStats(stats *logging.WorkerStats) Option {
	return func(l *Linter) {
		l.stats = stats
	}
}

// WithContext sets the context processes run under. Cancelling it kills
// running processes; superseding a unit does not.
func WithContext(ctx context.Context) Option {
	return func(l *Linter) {
		l.baseCtx = ctx
	}
}

type Linter struct {
	snapshot atomic.Pointer[config.Snapshot]
	runner   execution.Runner
	store    sink.Store
	notifier notify.Notifier
	stats    *logging.WorkerStats
	baseCtx  context.Context
	queue    *scheduler.Scheduler[model.ResourceKey]
}

func NewLinter(snap *config.Snapshot, runner execution.Runner, store sink.Store, notifier notify.Notifier, opts ...Option) *Linter {
	l := &Linter{
		runner:   runner,
		store:    store,
		notifier: notifier,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.queue = scheduler.New(scheduler.WithContext[model.ResourceKey](l.baseCtx))
	if l.stats != nil {
		l.stats.SetPendingFunc(l.queue.Len)
	}
	l.SetConfig(snap)
	return l
}

// SetConfig swaps the snapshot used by later submissions and reports its
// resolution warnings once. Units already queued keep the snapshot they
// captured.
func (l *Linter) SetConfig(snap *config.Snapshot) {
	if snap == nil {
		return
	}
	l.snapshot.Store(snap)
	for _, w := range snap.Warnings {
		l.notifier.Warn(w)
	}
	if snap.ConfigFilePath != "" && snap.Shape != nil &&
		!execution.ConfigFileExists(l.baseCtx, l.runner, snap.Shape, snap.ConfigFilePath) {
		l.notifier.Warn(fmt.Sprintf("%s file does not exist. Rubocop will run with default config", snap.ConfigFilePath))
	}
}

// Config returns the current snapshot.
func (l *Linter) Config() *config.Snapshot {
	return l.snapshot.Load()
}

// OnSave reports whether documents should be analyzed when saved.
func (l *Linter) OnSave() bool {
	snap := l.snapshot.Load()
	return snap != nil && snap.OnSave
}

// Execute queues an analysis of doc, superseding any earlier analysis of
// the same document. onComplete, when set, runs on the worker after the
// diagnostics were published; it does not run for superseded analyses. It
// returns the unit id, or ErrNotRuby or ErrNotConfigured when nothing was
// queued.
func (l *Linter) Execute(doc model.Document, onComplete func()) (string, error) {
	if doc.IsUntitled() || !doc.IsRuby() {
		return "", ErrNotRuby
	}
	snap := l.snapshot.Load()
	if snap == nil || snap.Shape == nil {
		return "", ErrNotConfigured
	}

	key := doc.Key()
	run := &model.Run{ID: uuid.NewString(), Key: key, Submitted: time.Now(), Status: model.RunPending}
	// the worker must see the text as it was at submission
	text := doc.Text
	path := doc.Path

	return l.queue.Submit(scheduler.Task[model.ResourceKey]{
		ID:  run.ID,
		Key: key,
		Action: func(ctx context.Context) scheduler.Outcome {
			return l.analyze(ctx, snap, key, path, text, run)
		},
		OnDispose: func(d scheduler.Disposition) {
			l.disposed(run, d)
			if d == scheduler.Finished && onComplete != nil {
				onComplete()
			}
		},
	}), nil
}

// Clear cancels every analysis of doc and removes its diagnostics. A
// publication already in progress finishes before the delete.
func (l *Linter) Clear(ctx context.Context, doc model.Document) error {
	if doc.IsUntitled() {
		return nil
	}
	key := doc.Key()
	l.queue.CancelAll(key)
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

// Autocorrect runs the analyzer in rewrite mode on the caller's goroutine
// and returns the corrected text. It never touches published diagnostics.
func (l *Linter) Autocorrect(ctx context.Context, doc model.Document) (string, error) {
	if doc.IsUntitled() || !doc.IsRuby() {
		return "", ErrNotRuby
	}
	snap := l.snapshot.Load()
	if snap == nil || snap.Shape == nil {
		return "", ErrNotConfigured
	}

	ctx, span := logging.StartSpan(ctx, "autocorrect", attribute.String("resource.key", string(doc.Key())))
	defer span.End()

	cmd := snap.Shape.Command(
		execution.AutocorrectArgs(doc.Path, snap.Args),
		execution.WorkDir(doc.Path, snap.WorkspaceRoots),
	)
	res := l.runner.Run(ctx, cmd, doc.Text)
	switch execution.Classify(res) {
	case execution.StatusClean, execution.StatusOffenses:
	default:
		if res.Stderr != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrCorrectionFailed, snap.Shape, res.Stderr)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrCorrectionFailed, snap.Shape, res.Err)
	}

	text, err := output.ExtractCorrection(res.Stdout)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

// Close stops the worker after the running analysis returns. Pending
// analyses are dropped.
func (l *Linter) Close() {
	l.queue.Close()
}

type report struct {
	warnings []string
	diags    []model.Diagnostic
	// publish is false when no diagnostics should replace the current set.
	publish bool
	failed  bool
}

func (l *Linter) analyze(ctx context.Context, snap *config.Snapshot, key model.ResourceKey, path, text string, run *model.Run) scheduler.Outcome {
	started := time.Now()
	run.Started = &started
	run.Status = model.RunRunning
	l.setCurrent(run)

	spanCtx, span := logging.StartSpan(ctx, "analyze", attribute.String("resource.key", string(key)))
	defer span.End()

	cmd := snap.Shape.Command(
		execution.AnalyzeArgs(path, snap.Args),
		execution.WorkDir(path, snap.WorkspaceRoots),
	)
	// superseding must not kill the process, only shutdown may
	runCtx := trace.ContextWithSpan(l.baseCtx, span)
	res := l.runner.Run(runCtx, cmd, text)

	elapsed := time.Since(started)
	logging.UpdateSpanValue(spanCtx, "analyze.seconds", elapsed.Seconds())
	logging.LogAttrs(spanCtx, slog.LevelDebug, "analysis finished",
		slog.String("key", string(key)),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("elapsed", elapsed))

	if ctx.Err() != nil {
		return scheduler.Superseded()
	}

	rep := evaluate(snap, res)
	span.SetAttributes(attribute.Int("analyze.offenses", len(rep.diags)))
	if rep.failed {
		msg := fmt.Sprint(res.Err)
		run.LastError = &msg
	}

	return scheduler.Completed(func() {
		l.publish(key, rep, run)
	})
}

// evaluate applies the exit-code contract and parses the output.
func evaluate(snap *config.Snapshot, res execution.Result) report {
	var rep report
	command := snap.Shape.String()
	warn := func(msg string, suppressible bool) {
		if msg == "" || (suppressible && snap.SuppressWarnings) {
			return
		}
		rep.warnings = append(rep.warnings, msg)
	}

	var spawnErr *execution.SpawnError
	var exitErr *execution.ExitError
	switch {
	case errors.As(res.Err, &spawnErr):
		warn(command+" is not executable", false)
		rep.failed = true
		return rep
	case execution.IsSpawnFailure(res):
		if res.Stderr != "" {
			warn(res.Stderr, false)
		} else {
			warn(command+" exited with status 127", false)
		}
		rep.failed = true
		return rep
	case execution.Classify(res) == execution.StatusFailed:
		switch {
		case res.Stderr != "":
			warn(res.Stderr, true)
		case errors.As(res.Err, &exitErr):
			warn(fmt.Sprintf("%s exited with status %d", command, exitErr.Code), true)
		default:
			warn(fmt.Sprintf("%s failed: %v", command, res.Err), true)
		}
		rep.failed = true
		return rep
	}

	if res.Stderr != "" {
		warn(res.Stderr, true)
	}

	findings, err := output.Parse(res.Stdout)
	var decodeErr *output.DecodeError
	switch {
	case errors.Is(err, output.ErrEmptyOutput):
		warn(fmt.Sprintf("command %s returns empty output! please check configuration.", command), false)
		return rep
	case errors.As(err, &decodeErr):
		warn(fmt.Sprintf(`Error on parsing output (It might non-JSON output) : "%s"`, decodeErr.Excerpt), false)
		return rep
	case err != nil:
		warn(err.Error(), false)
		return rep
	}

	rep.diags = output.ToDiagnostics(findings)
	rep.publish = true
	return rep
}

func (l *Linter) publish(key model.ResourceKey, rep report, run *model.Run) {
	for _, w := range rep.warnings {
		l.notifier.Warn(w)
	}

	var sinkFailed bool
	if rep.publish {
		if err := l.store.Replace(l.baseCtx, key, rep.diags); err != nil {
			logging.Log(fmt.Sprintf("Error publishing diagnostics for %s: %v", key, err), slog.LevelError)
			sinkFailed = true
		}
	}

	run.Offenses = len(rep.diags)
	if rep.failed || sinkFailed {
		run.Status = model.RunFailed
	} else {
		run.Status = model.RunCompleted
	}
	if l.stats != nil && sinkFailed {
		l.stats.UpdateStats(logging.StatsDelta{SinkFailures: 1})
	}
}

func (l *Linter) disposed(run *model.Run, d scheduler.Disposition) {
	finished := time.Now()
	run.Finished = &finished

	var delta logging.StatsDelta
	switch d {
	case scheduler.Finished:
		delta.Processed = 1
		if run.Status == model.RunFailed {
			delta.Failed = 1
		} else {
			delta.Success = 1
			delta.Offenses = uint64(run.Offenses)
		}
	case scheduler.Discarded:
		run.Status = model.RunSuperseded
		delta.Processed = 1
		delta.Superseded = 1
	case scheduler.Removed:
		run.Status = model.RunCancelled
		delta.Superseded = 1
	}

	if l.stats == nil {
		return
	}
	l.stats.UpdateStats(delta)
	if d != scheduler.Removed {
		l.stats.SetCurrent(nil)
	}
}

func (l *Linter) setCurrent(run *model.Run) {
	if l.stats == nil {
		return
	}
	snapshot := *run
	l.stats.SetCurrent(&snapshot)
}
