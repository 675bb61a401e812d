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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lintworker/src/logging"
	"lintworker/src/model"
	"lintworker/src/notify"
	"lintworker/src/output"
	"lintworker/src/processor"
	"lintworker/src/sink"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxRequestBody bounds uploaded document text.
const maxRequestBody = 64 << 20

// APIServer holds dependencies for the HTTP handlers
type APIServer struct {
	linter   *processor.Linter
	store    sink.Store
	stats    *logging.WorkerStats
	warnings *notify.Channel
}

func NewAPIServer(linter *processor.Linter, store sink.Store, stats *logging.WorkerStats, warnings *notify.Channel) *APIServer {
	return &APIServer{
		linter:   linter,
		store:    store,
		stats:    stats,
		warnings: warnings,
	}
}

// Handler returns the routes wrapped with the OTel middleware.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.analyzeHandler)
	mux.HandleFunc("POST /autocorrect", s.autocorrectHandler)
	mux.HandleFunc("GET /diagnostics", s.diagnosticsHandler)
	mux.HandleFunc("DELETE /diagnostics", s.clearHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /global-status", s.globalStatusHandler)
	mux.HandleFunc("GET /warnings", s.warningsHandler)

	return otelhttp.NewHandler(mux, "worker-api-server")
}

// StartAPIServer serves until ctx is cancelled, then shuts down gracefully.
func StartAPIServer(ctx context.Context, port string, srv *APIServer) error {
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Log(fmt.Sprintf("API Server starting on :%s", port), slog.LevelInfo)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logging.Log("Server exited cleanly", slog.LevelInfo)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type analyzeResponse struct {
	ID string `json:"id"`
}

type correctionResponse struct {
	Text string `json:"text"`
}

type diagnosticsResponse struct {
	Path        string             `json:"path"`
	Diagnostics []model.Diagnostic `json:"diagnostics"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (model.Document, bool) {
	var doc model.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document: "+err.Error())
		return doc, false
	}
	return doc, true
}

func (s *APIServer) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("trigger") == "save" && !s.linter.OnSave() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id, err := s.linter.Execute(doc, nil)
	switch {
	case errors.Is(err, processor.ErrNotRuby):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, processor.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, analyzeResponse{ID: id})
}

func (s *APIServer) autocorrectHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	text, err := s.linter.Autocorrect(r.Context(), doc)
	var extractErr *output.ExtractError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, correctionResponse{Text: text})
	case errors.Is(err, processor.ErrNotRuby):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, processor.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, processor.ErrCorrectionFailed), errors.As(err, &extractErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *APIServer) diagnosticsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	key := model.KeyFor(path)
	diags, err := s.store.Get(r.Context(), key)
	if err != nil {
		logging.Log(fmt.Sprintf("Error reading diagnostics for %s: %v", key, err), slog.LevelError)
		writeError(w, http.StatusInternalServerError, "failed to read diagnostics")
		return
	}
	if diags == nil {
		diags = []model.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Path: string(key), Diagnostics: diags})
}

func (s *APIServer) clearHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	if err := s.linter.Clear(r.Context(), model.Document{Path: path}); err != nil {
		logging.Log(err.Error(), slog.LevelError)
		writeError(w, http.StatusInternalServerError, "failed to clear diagnostics")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.GetStats())
}

func (s *APIServer) globalStatusHandler(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.Summary(r.Context())
	if err != nil {
		http.Error(w, "Failed to query system stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *APIServer) warningsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.warnings.Recent())
}
