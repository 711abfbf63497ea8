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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(line, char int) Position { return Position{Line: line, Character: char} }

func rng(l1, c1, l2, c2 int) Range { return Range{Start: pos(l1, c1), End: pos(l2, c2)} }

func TestLineIndex_Offset(t *testing.T) {
	li := NewLineIndex([]byte("ab\ncde\n"))

	tests := []struct {
		name string
		pos  Position
		want int
		err  bool
	}{
		{"start", pos(0, 0), 0, false},
		{"end of first line", pos(0, 2), 2, false},
		{"second line", pos(1, 1), 4, false},
		{"after trailing newline", pos(2, 0), 7, false},
		{"past line end", pos(0, 3), 0, true},
		{"past last line", pos(3, 0), 0, true},
		{"negative", pos(-1, 0), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := li.Offset(tt.pos)
			if tt.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrPositionOutOfRange))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLineIndex_PositionAt(t *testing.T) {
	li := NewLineIndex([]byte("ab\ncde"))
	assert.Equal(t, pos(0, 0), li.PositionAt(0))
	assert.Equal(t, pos(0, 2), li.PositionAt(2))
	assert.Equal(t, pos(1, 0), li.PositionAt(3))
	assert.Equal(t, pos(1, 3), li.PositionAt(6))
	assert.Equal(t, pos(1, 3), li.PositionAt(100))
}

func TestLineIndex_LineRange(t *testing.T) {
	content := []byte("a\nb\nc")
	li := NewLineIndex(content)
	assert.Equal(t, rng(1, 0, 2, 0), li.LineRange(1, 1))
	assert.Equal(t, rng(2, 0, 2, 1), li.LineRange(2, 2))
}

func TestApplyEdits_DescendingOrderIndependent(t *testing.T) {
	content := []byte("foo bar foo\nfoo\n")
	edits := []TextEdit{
		{Range: rng(0, 0, 0, 3), NewText: "qux"},
		{Range: rng(1, 0, 1, 3), NewText: "qux"},
		{Range: rng(0, 8, 0, 11), NewText: "quux"},
	}
	got, err := ApplyEdits(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "qux bar quux\nqux\n", string(got))
	assert.Equal(t, "foo bar foo\nfoo\n", string(content), "input must not change")
}

func TestApplyEdits_InsertAndDelete(t *testing.T) {
	content := []byte("import a\nimport b\nbody\n")
	edits := []TextEdit{
		{Kind: EditDelete, Range: rng(0, 0, 1, 0)},
		{Kind: EditInsert, Range: rng(2, 0, 2, 0), NewText: "// hi\n"},
	}
	got, err := ApplyEdits(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "import b\n// hi\nbody\n", string(got))
}

func TestApplyEdits_InsertsAtSameOffsetKeepOrder(t *testing.T) {
	got, err := ApplyEdits([]byte("x"), []TextEdit{
		{Kind: EditInsert, Range: rng(0, 0, 0, 0), NewText: "a"},
		{Kind: EditInsert, Range: rng(0, 0, 0, 0), NewText: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abx", string(got))
}

func TestApplyEdits_Overlap(t *testing.T) {
	_, err := ApplyEdits([]byte("abcdef"), []TextEdit{
		{Range: rng(0, 0, 0, 3), NewText: "x"},
		{Range: rng(0, 2, 0, 4), NewText: "y"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlappingEdits))
}

func TestApplyEdits_RejectsFileOps(t *testing.T) {
	_, err := ApplyEdits([]byte("a"), []TextEdit{{Kind: EditDeleteFile}})
	assert.True(t, errors.Is(err, ErrInvalidEdit))
}

func TestSortDescending(t *testing.T) {
	edits := []TextEdit{
		{Range: rng(0, 1, 0, 2)},
		{Range: rng(3, 0, 3, 1)},
		{Range: rng(1, 5, 1, 6)},
	}
	SortDescending(edits)
	assert.Equal(t, 3, edits[0].Range.Start.Line)
	assert.Equal(t, 1, edits[1].Range.Start.Line)
	assert.Equal(t, 0, edits[2].Range.Start.Line)
}

func TestRange_Contains(t *testing.T) {
	r := rng(1, 2, 1, 5)
	assert.True(t, r.Contains(pos(1, 2)))
	assert.True(t, r.Contains(pos(1, 5)))
	assert.False(t, r.Contains(pos(1, 6)))
	assert.False(t, r.Contains(pos(0, 3)))
}
