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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCorrection(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "single header line",
			raw:  "{\"metadata\":{}}\n====================\ndef a\n  3\nend\n",
			want: "def a\n  3\nend\n",
		},
		{
			name: "multi line report header",
			raw:  "Inspecting 1 file\nC\n\nOffenses:\n\na.rb:1:1: C: Style/FrozenStringLiteralComment\n\n1 file inspected, 1 offense detected, 1 offense corrected\n====================\n# frozen_string_literal: true\n",
			want: "# frozen_string_literal: true\n",
		},
		{
			name: "crlf body is preserved",
			raw:  "meta\r\n====================\r\nputs 1\r\nputs 2\r\n",
			want: "puts 1\r\nputs 2\r\n",
		},
		{
			name: "body without trailing newline",
			raw:  "meta\n==========\nputs 1",
			want: "puts 1",
		},
		{
			name: "body containing separator-like lines",
			raw:  "meta\n=====\nputs 1\n=====\nputs 2\n",
			want: "puts 1\n=====\nputs 2\n",
		},
		{
			name: "empty body",
			raw:  "meta\n====================\n",
			want: "",
		},
		{
			name: "separator at end of output",
			raw:  "meta\n====================",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCorrection(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCorrection_BodyIsByteForByte(t *testing.T) {
	bodies := []string{
		"",
		"\n",
		"class Foo\n  def bar = 1\nend\n",
		"x = 'a == b'\r\n\r\n\ty\n",
		"# ====\n",
	}
	for _, body := range bodies {
		got, err := ExtractCorrection("{\"summary\":{}}\n====================\n" + body)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

func TestExtractCorrection_MissingSeparator(t *testing.T) {
	tests := []string{
		"",
		"def a\nend\n",
		"====================\ndef a\nend\n",
		"meta====================\ndef a\n",
		"meta\n== x ==\nbody\n",
	}
	for _, raw := range tests {
		_, err := ExtractCorrection(raw)
		var extractErr *ExtractError
		require.True(t, errors.As(err, &extractErr), "%q", raw)
		assert.Equal(t, raw, extractErr.Output)
	}
}
