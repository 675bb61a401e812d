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

// Package sink stores the published diagnostics per document. Every update
// replaces a document's whole set so readers never see a partial merge.
package sink

import (
	"context"
	"slices"
	"sync"

	"lintworker/src/model"
)

type Store interface {
	// Replace deletes every diagnostic for key and stores diags instead.
	Replace(ctx context.Context, key model.ResourceKey, diags []model.Diagnostic) error
	Delete(ctx context.Context, key model.ResourceKey) error
	Get(ctx context.Context, key model.ResourceKey) ([]model.Diagnostic, error)
	Keys(ctx context.Context) ([]model.ResourceKey, error)
	Summary(ctx context.Context) (Summary, error)
}

// Summary aggregates everything currently published. Documents counts keys
// holding at least one diagnostic.
type Summary struct {
	Documents   int `json:"documents"`
	Diagnostics int `json:"diagnostics"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	Information int `json:"information"`
	Hints       int `json:"hints"`
}

func (s *Summary) add(sev model.Severity) {
	s.Diagnostics++
	switch sev {
	case model.SeverityError:
		s.Errors++
	case model.SeverityWarning:
		s.Warnings++
	case model.SeverityInformation:
		s.Information++
	case model.SeverityHint:
		s.Hints++
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[model.ResourceKey][]model.Diagnostic
}

func NewMemory() *Memory {
	return &Memory{data: make(map[model.ResourceKey][]model.Diagnostic)}
}

// Replace swaps the key's set. An empty set drops the key, as a table
// without rows for it would.
func (m *Memory) Replace(_ context.Context, key model.ResourceKey, diags []model.Diagnostic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(diags) == 0 {
		delete(m.data, key)
		return nil
	}
	m.data[key] = slices.Clone(diags)
	return nil
}

func (m *Memory) Delete(_ context.Context, key model.ResourceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Get returns a copy of the key's diagnostics; nil when none were published.
func (m *Memory) Get(_ context.Context, key model.ResourceKey) ([]model.Diagnostic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data[key]), nil
}

func (m *Memory) Keys(_ context.Context) ([]model.ResourceKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]model.ResourceKey, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Summary(_ context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum Summary
	for _, diags := range m.data {
		sum.Documents++
		for _, d := range diags {
			sum.add(d.Severity)
		}
	}
	return sum, nil
}
