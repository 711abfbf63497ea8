// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"src/*.ts", "src/a.ts", true},
		{"src/*.ts", "src/lib/a.ts", false},
		{"src/**/*.ts", "src/a.ts", true},
		{"src/**/*.ts", "src/lib/deep/a.ts", true},
		{"**/generated", "a/b/generated", true},
		{"**/generated", "generated", true},
		{"docs/**", "docs", true},
		{"docs/**", "src/docs", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.path))
		})
	}
}

func TestExcluder(t *testing.T) {
	e := newExcluder("/ws", DefaultExcludes, []string{"*.gen.ts", "tools/scripts/", "  "})

	assert.True(t, e.excluded("/ws/node_modules/x/index.ts"))
	assert.True(t, e.excluded("/ws/pkg/vendor/lib.go"))
	assert.True(t, e.excluded("/ws/src/api.gen.ts"))
	assert.True(t, e.excluded("/ws/tools/scripts/run.py"))
	assert.False(t, e.excluded("/ws/tools/other/run.py"))
	assert.False(t, e.excluded("/ws/src/api.ts"))
	assert.False(t, e.excluded("/ws"))
}

func TestScopeBase(t *testing.T) {
	base, err := Scope{}.base("/ws")
	require.NoError(t, err)
	assert.Equal(t, "/ws", base)

	base, err = Scope{Kind: ScopeDirectory, Path: "src/lib"}.base("/ws")
	require.NoError(t, err)
	assert.Equal(t, "/ws/src/lib", base)

	_, err = Scope{Kind: ScopeDirectory, Path: "/elsewhere"}.base("/ws")
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))

	_, err = Scope{Kind: "galaxy"}.base("/ws")
	assert.Error(t, err)
}

func TestMergeSorted(t *testing.T) {
	got := mergeSorted([]string{"/a", "/c"}, []string{"/b", "/c"})
	assert.Equal(t, []string{"/a", "/b", "/c"}, got)
}
