// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentEdit(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
	}{
		{"middle change", "module a\n\nrequire b v1\n", "module a\n\nrequire b v2\n"},
		{"append", "[deps]\nx = 1\n", "[deps]\nx = 1\ny = 2\n"},
		{"prepend", "b\n", "a\nb\n"},
		{"delete all", "abc", ""},
		{"from empty", "", "abc"},
		{"repeated suffix", "aaa", "aaaa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edit, ok := ContentEdit("/ws/f", []byte(tt.before), []byte(tt.after))
			require.True(t, ok)
			got, err := ApplyEdits([]byte(tt.before), []TextEdit{edit})
			require.NoError(t, err)
			assert.Equal(t, tt.after, string(got))
		})
	}

	_, ok := ContentEdit("/ws/f", []byte("same"), []byte("same"))
	assert.False(t, ok)
}
