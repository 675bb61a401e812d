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

// Package output decodes what the analyzer prints: the JSON findings report
// and the rewritten source emitted in auto-correct mode.
package output

import (
	"encoding/json"
	"errors"
	"fmt"

	"lintworker/src/model"

	regexp "github.com/wasilibs/go-re2"
)

// ErrEmptyOutput means the analyzer printed nothing on stdout.
var ErrEmptyOutput = errors.New("empty output")

var whitespaceRun = regexp.MustCompile(`[\r\n \t]+`)

// DecodeError means stdout was not a findings document. Excerpt is the
// offending text with whitespace runs collapsed to single spaces.
type DecodeError struct {
	Excerpt string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode findings: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Sanitize collapses every run of CR, LF, space and tab into one space.
func Sanitize(raw string) string {
	return whitespaceRun.ReplaceAllString(raw, " ")
}

// Parse decodes the analyzer's JSON report. A successful decode is trusted
// as is.
func Parse(raw string) (*model.Findings, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyOutput
	}
	var findings model.Findings
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return nil, &DecodeError{Excerpt: Sanitize(raw), Err: err}
	}
	return &findings, nil
}

// ClassifySeverity maps analyzer severities onto diagnostic levels. Unknown
// severities are reported as errors.
func ClassifySeverity(severity string) model.Severity {
	switch severity {
	case "refactor":
		return model.SeverityHint
	case "convention", "info":
		return model.SeverityInformation
	case "warning":
		return model.SeverityWarning
	case "error", "fatal":
		return model.SeverityError
	default:
		return model.SeverityError
	}
}

// ToRange converts a 1-based location with a length into a 0-based
// half-open range on a single line.
func ToRange(loc model.Location) model.Range {
	line := max(loc.Line-1, 0)
	col := max(loc.Column-1, 0)
	return model.Range{
		Start: model.Position{Line: line, Character: col},
		End:   model.Position{Line: line, Character: col + max(loc.Length, 0)},
	}
}

// FormatMessage renders "<message> (<severity>:<cop>)".
func FormatMessage(o model.Offense) string {
	return fmt.Sprintf("%s (%s:%s)", o.Message, o.Severity, o.CopName)
}

// ToDiagnostics flattens every file's offenses, in report order.
func ToDiagnostics(findings *model.Findings) []model.Diagnostic {
	if findings == nil {
		return nil
	}
	diags := make([]model.Diagnostic, 0, findings.OffenseCount())
	for _, file := range findings.Files {
		for _, o := range file.Offenses {
			diags = append(diags, model.Diagnostic{
				Range:    ToRange(o.Location),
				Message:  FormatMessage(o),
				Severity: ClassifySeverity(o.Severity),
				Source:   "rubocop",
				Code:     o.CopName,
			})
		}
	}
	return diags
}
