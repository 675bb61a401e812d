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

package sink

import (
	"context"
	"database/sql"
	"fmt"

	"lintworker/src/model"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS DIAGNOSTICS (
	RESOURCE_KEY TEXT NOT NULL,
	SEQ          INTEGER NOT NULL,
	START_LINE   INTEGER NOT NULL,
	START_CHAR   INTEGER NOT NULL,
	END_LINE     INTEGER NOT NULL,
	END_CHAR     INTEGER NOT NULL,
	SEVERITY     INTEGER NOT NULL,
	MESSAGE      TEXT NOT NULL,
	SOURCE       TEXT NOT NULL DEFAULT '',
	CODE         TEXT NOT NULL DEFAULT '',
	PUBLISHED_AT TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (RESOURCE_KEY, SEQ)
)`

// Postgres stores diagnostics in the DIAGNOSTICS table. Replace runs in a
// single transaction.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create diagnostics table: %w", err)
	}
	return nil
}

func (p *Postgres) Replace(ctx context.Context, key model.ResourceKey, diags []model.Diagnostic) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM DIAGNOSTICS WHERE RESOURCE_KEY = $1", string(key)); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}

	if len(diags) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("diagnostics",
			"resource_key", "seq", "start_line", "start_char", "end_line", "end_char",
			"severity", "message", "source", "code"))
		if err != nil {
			return fmt.Errorf("prepare copy: %w", err)
		}
		for i, d := range diags {
			if _, err := stmt.ExecContext(ctx, string(key), i,
				d.Range.Start.Line, d.Range.Start.Character, d.Range.End.Line, d.Range.End.Character,
				int(d.Severity), d.Message, d.Source, d.Code); err != nil {
				stmt.Close()
				return fmt.Errorf("copy diagnostic %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flush copy: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("close copy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diagnostics: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key model.ResourceKey) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM DIAGNOSTICS WHERE RESOURCE_KEY = $1", string(key)); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key model.ResourceKey) ([]model.Diagnostic, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT START_LINE, START_CHAR, END_LINE, END_CHAR, SEVERITY, MESSAGE, SOURCE, CODE
		FROM DIAGNOSTICS
		WHERE RESOURCE_KEY = $1
		ORDER BY SEQ`, string(key))
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []model.Diagnostic
	for rows.Next() {
		var d model.Diagnostic
		var severity int
		if err := rows.Scan(&d.Range.Start.Line, &d.Range.Start.Character, &d.Range.End.Line, &d.Range.End.Character,
			&severity, &d.Message, &d.Source, &d.Code); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = model.Severity(severity)
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

func (p *Postgres) Keys(ctx context.Context) ([]model.ResourceKey, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT DISTINCT RESOURCE_KEY FROM DIAGNOSTICS ORDER BY RESOURCE_KEY")
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []model.ResourceKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, model.ResourceKey(k))
	}
	return keys, rows.Err()
}

func (p *Postgres) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT RESOURCE_KEY),
			COUNT(*),
			COUNT(*) FILTER (WHERE SEVERITY = 1),
			COUNT(*) FILTER (WHERE SEVERITY = 2),
			COUNT(*) FILTER (WHERE SEVERITY = 3),
			COUNT(*) FILTER (WHERE SEVERITY = 4)
		FROM DIAGNOSTICS`).Scan(
		&sum.Documents, &sum.Diagnostics, &sum.Errors, &sum.Warnings, &sum.Information, &sum.Hints,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	return sum, nil
}
