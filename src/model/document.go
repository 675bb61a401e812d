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

import (
	"path/filepath"
	"strings"
)

// ResourceKey identifies the document a unit of work targets.
type ResourceKey string

// Document is the host's view of an open file: its path, language and the
// current (possibly unsaved) text.
type Document struct {
	Path       string `json:"path"`
	LanguageID string `json:"language_id"`
	Text       string `json:"text"`
}

// Key returns the canonical resource key for the document.
func (d Document) Key() ResourceKey {
	return KeyFor(d.Path)
}

// KeyFor cleans path into a resource key. Relative paths are made absolute
// against the process working directory when possible.
func KeyFor(path string) ResourceKey {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return ResourceKey(abs)
	}
	return ResourceKey(filepath.Clean(path))
}

// IsUntitled reports whether the document has never been saved to disk.
func (d Document) IsUntitled() bool {
	return strings.TrimSpace(d.Path) == ""
}

var rubyFileNames = map[string]bool{
	"Gemfile":   true,
	"Rakefile":  true,
	"Guardfile": true,
}

var rubyExtensions = map[string]bool{
	".rb":      true,
	".rake":    true,
	".gemspec": true,
	".ru":      true,
}

// IsRuby reports whether the document should be handed to the analyzer.
// The language id wins when set; otherwise the file name decides.
func (d Document) IsRuby() bool {
	switch d.LanguageID {
	case "ruby", "gemfile":
		return true
	case "":
	default:
		return false
	}
	base := filepath.Base(d.Path)
	return rubyFileNames[base] || rubyExtensions[filepath.Ext(base)]
}
