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

package execution

import (
	"path/filepath"
	"strings"
)

const emptyFileCop = "Lint/EmptyFile"

// ArgOptions are the snapshot settings that shape the argument vector.
type ArgOptions struct {
	DisableEmptyFileCop bool
	ExtraArgs           []string
}

func baseArgs(path string, opts ArgOptions) []string {
	args := []string{"--stdin", path, "--force-exclusion"}
	if opts.DisableEmptyFileCop {
		args = append(args, "--except", emptyFileCop)
	}
	return args
}

// AnalyzeArgs builds the structured-output invocation:
// --stdin <path> --force-exclusion [--except Lint/EmptyFile] --format json [extra].
func AnalyzeArgs(path string, opts ArgOptions) []string {
	args := append(baseArgs(path, opts), "--format", "json")
	return append(args, opts.ExtraArgs...)
}

// AutocorrectArgs builds the rewrite invocation. Extra args are not passed
// because they may change the output format the extractor relies on.
func AutocorrectArgs(path string, opts ArgOptions) []string {
	return append(baseArgs(path, opts), "--auto-correct")
}

// WorkDir picks the longest workspace root containing path, falling back to
// the directory of path.
func WorkDir(path string, roots []string) string {
	best := ""
	clean := filepath.Clean(path)
	for _, root := range roots {
		if root == "" {
			continue
		}
		r := filepath.Clean(root)
		if clean != r && !strings.HasPrefix(clean, r+string(filepath.Separator)) {
			continue
		}
		if len(r) > len(best) {
			best = r
		}
	}
	if best != "" {
		return best
	}
	return filepath.Dir(clean)
}
