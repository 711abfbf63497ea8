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
	"fmt"
	"sort"
	"strings"
)

// Position is a zero-based line and byte column.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

// String renders the position as 1-based line:col for messages.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

// Range is a half-open span [Start, End).
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Empty reports whether the range covers no text.
func (r Range) Empty() bool {
	return r.Start == r.End
}

// Ordered reports whether Start does not come after End.
func (r Range) Ordered() bool {
	return !r.End.Before(r.Start)
}

// Contains reports whether pos lies inside the range. A position equal to
// End is considered inside so that a cursor placed right after an
// identifier still selects it.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && !r.End.Before(pos)
}

// Overlaps reports whether two ranges share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// LineIndex converts between byte offsets and positions for one file.
type LineIndex struct {
	starts []int
	size   int
}

// NewLineIndex indexes content.
func NewLineIndex(content []byte) *LineIndex {
	starts := make([]int, 1, 64)
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(content)}
}

// LineCount returns the number of addressable lines.
func (li *LineIndex) LineCount() int {
	return len(li.starts)
}

// LineStart returns the byte offset of the first byte of line.
func (li *LineIndex) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(li.starts) {
		return li.size
	}
	return li.starts[line]
}

// LineEnd returns the offset of the line's terminating newline, or the end
// of content for the last line.
func (li *LineIndex) LineEnd(line int) int {
	if line+1 < len(li.starts) {
		return li.starts[line+1] - 1
	}
	return li.size
}

// Offset converts pos to a byte offset.
func (li *LineIndex) Offset(pos Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("%w: negative position %d:%d", ErrPositionOutOfRange, pos.Line, pos.Character)
	}
	if pos.Line >= len(li.starts) {
		return 0, fmt.Errorf("%w: line %d beyond %d lines", ErrPositionOutOfRange, pos.Line, len(li.starts))
	}
	start := li.starts[pos.Line]
	if start+pos.Character > li.LineEnd(pos.Line) {
		return 0, fmt.Errorf("%w: character %d beyond end of line %d", ErrPositionOutOfRange, pos.Character, pos.Line)
	}
	return start + pos.Character, nil
}

// PositionAt converts a byte offset to a position. Offsets past the end
// clamp to the end of content.
func (li *LineIndex) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > li.size {
		offset = li.size
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return Position{Line: line, Character: offset - li.starts[line]}
}

// RangeOf converts a byte span to a Range.
func (li *LineIndex) RangeOf(start, end int) Range {
	return Range{Start: li.PositionAt(start), End: li.PositionAt(end)}
}

// FullRange returns the range covering all of content.
func (li *LineIndex) FullRange() Range {
	return li.RangeOf(0, li.size)
}

// LineRange returns the range of whole lines [first, last], including the
// trailing newline of last when there is one.
func (li *LineIndex) LineRange(first, last int) Range {
	end := li.LineEnd(last)
	if end < li.size {
		end++
	}
	return li.RangeOf(li.LineStart(first), end)
}

type resolvedEdit struct {
	start, end int
	text       string
	index      int
}

// ApplyEdits applies text edits to content and returns the new content.
//
// # Description
//
// Edits are resolved to byte offsets against the original content, checked
// for overlap, and applied in descending position order so that earlier
// edits never shift the offsets of later ones. Edits sharing a start offset
// keep their plan order in the output. File operations in edits are an
// error; callers must filter them first.
//
// # Outputs
//
//	[]byte - The edited content. content itself is never modified.
//	error - ErrPositionOutOfRange, ErrOverlappingEdits, or ErrInvalidEdit.
func ApplyEdits(content []byte, edits []TextEdit) ([]byte, error) {
	if len(edits) == 0 {
		out := make([]byte, len(content))
		copy(out, content)
		return out, nil
	}

	li := NewLineIndex(content)
	resolved := make([]resolvedEdit, 0, len(edits))
	for i, e := range edits {
		if !e.EffectiveKind().IsText() {
			return nil, fmt.Errorf("%w: %s is not a text edit", ErrInvalidEdit, e.EffectiveKind())
		}
		if !e.Range.Ordered() {
			return nil, fmt.Errorf("%w: range end before start in %s", ErrInvalidEdit, e.FilePath)
		}
		start, err := li.Offset(e.Range.Start)
		if err != nil {
			return nil, err
		}
		end, err := li.Offset(e.Range.End)
		if err != nil {
			return nil, err
		}
		text := e.NewText
		if e.EffectiveKind() == EditDelete {
			text = ""
		}
		resolved = append(resolved, resolvedEdit{start: start, end: end, text: text, index: i})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		a, b := resolved[i], resolved[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end < b.end
		}
		return a.index < b.index
	})
	for i := 1; i < len(resolved); i++ {
		if resolved[i-1].end > resolved[i].start {
			return nil, fmt.Errorf("%w: bytes %d-%d and %d-%d", ErrOverlappingEdits,
				resolved[i-1].start, resolved[i-1].end, resolved[i].start, resolved[i].end)
		}
	}

	// Walk ascending and splice: equivalent to applying in descending order
	// against the original offsets, without repeated copying.
	var b strings.Builder
	b.Grow(len(content))
	cursor := 0
	for _, r := range resolved {
		b.Write(content[cursor:r.start])
		b.WriteString(r.text)
		cursor = r.end
	}
	b.Write(content[cursor:])
	return []byte(b.String()), nil
}

// SortDescending orders edits for sequential application: by start
// position descending, wider edits first on ties.
func SortDescending(edits []TextEdit) {
	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i].Range, edits[j].Range
		if a.Start != b.Start {
			return b.Start.Before(a.Start)
		}
		return b.End.Before(a.End)
	})
}

// CheckOverlaps returns ErrOverlappingEdits if any two text edits in the
// same file overlap. Zero-width inserts never overlap each other.
func CheckOverlaps(edits []TextEdit) error {
	byFile := make(map[string][]TextEdit)
	for _, e := range edits {
		if e.EffectiveKind().IsText() {
			byFile[e.FilePath] = append(byFile[e.FilePath], e)
		}
	}
	for path, fileEdits := range byFile {
		sorted := append([]TextEdit(nil), fileEdits...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Range.Start != sorted[j].Range.Start {
				return sorted[i].Range.Start.Before(sorted[j].Range.Start)
			}
			return sorted[i].Range.End.Before(sorted[j].Range.End)
		})
		for i := 1; i < len(sorted); i++ {
			if sorted[i-1].Range.Overlaps(sorted[i].Range) {
				return fmt.Errorf("%w: %s at %s and %s", ErrOverlappingEdits, path,
					sorted[i-1].Range.Start, sorted[i].Range.Start)
			}
		}
	}
	return nil
}
