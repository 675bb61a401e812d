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

package output

import (
	"fmt"

	regexp "github.com/wasilibs/go-re2"
)

// separatorLine matches a line made only of '=' characters. A trailing CR
// belongs to the line terminator.
var separatorLine = regexp.MustCompile(`(?m)^=+\r?$`)

// ExtractError means the rewrite output had no separator line.
type ExtractError struct {
	Output string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("Error parsing auto-correction from CLI: %s", e.Output)
}

// ExtractCorrection returns the corrected document from auto-correct
// output: the report header, a separator line of '=' characters, then the
// corrected source verbatim. The separator is never the first line.
func ExtractCorrection(raw string) (string, error) {
	for _, loc := range separatorLine.FindAllStringIndex(raw, -1) {
		start, end := loc[0], loc[1]
		if start == 0 {
			continue
		}
		if end >= len(raw) {
			return "", nil
		}
		// end sits on the '\n' closing the separator line.
		return raw[end+1:], nil
	}
	return "", &ExtractError{Output: raw}
}
