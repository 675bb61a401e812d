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

package model

// Findings is the decoded JSON report of one analysis run.
type Findings struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Files    []File    `json:"files"`
	Summary  *Summary  `json:"summary,omitempty"`
}

type Metadata struct {
	RubocopVersion string `json:"rubocop_version"`
	RubyEngine     string `json:"ruby_engine"`
	RubyVersion    string `json:"ruby_version"`
}

type Summary struct {
	OffenseCount       int `json:"offense_count"`
	TargetFileCount    int `json:"target_file_count"`
	InspectedFileCount int `json:"inspected_file_count"`
}

type File struct {
	Path     string    `json:"path"`
	Offenses []Offense `json:"offenses"`
}

type Offense struct {
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	CopName     string   `json:"cop_name"`
	Corrected   bool     `json:"corrected"`
	Correctable bool     `json:"correctable"`
	Location    Location `json:"location"`
}

// Location is 1-based; Length counts characters on Line starting at Column.
type Location struct {
	Line        int `json:"line"`
	Column      int `json:"column"`
	Length      int `json:"length"`
	StartLine   int `json:"start_line,omitempty"`
	StartColumn int `json:"start_column,omitempty"`
	LastLine    int `json:"last_line,omitempty"`
	LastColumn  int `json:"last_column,omitempty"`
}

// OffenseCount sums offenses across every file of the report.
func (f *Findings) OffenseCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, file := range f.Files {
		n += len(file.Offenses)
	}
	return n
}
