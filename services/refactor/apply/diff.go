// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"bytes"
	"path/filepath"

	"github.com/sourcegraph/go-diff/diff"
)

const diffContext = 3

const noNewline = "\\ No newline at end of file\n"

// renderDiff prints the staged operations as a unified multi-file diff
// with paths relative to root.
func renderDiff(root string, ops []*fileOp) (string, error) {
	var files []*diff.FileDiff
	for _, op := range ops {
		if fd := fileDiff(root, op); fd != nil {
			files = append(files, fd)
		}
	}
	if len(files) == 0 {
		return "", nil
	}
	out, err := diff.PrintMultiFileDiff(files)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func fileDiff(root string, op *fileOp) *diff.FileDiff {
	rel := func(p string) string {
		if r, err := filepath.Rel(root, p); err == nil && root != "" {
			return filepath.ToSlash(r)
		}
		return filepath.ToSlash(p)
	}

	switch op.kind {
	case opCreate:
		return &diff.FileDiff{
			OrigName: "/dev/null",
			NewName:  "b/" + rel(op.path),
			Extended: []string{"diff --git a/" + rel(op.path) + " b/" + rel(op.path), "new file mode 100644"},
			Hunks:    hunks(nil, op.content),
		}
	case opDelete:
		return &diff.FileDiff{
			OrigName: "a/" + rel(op.path),
			NewName:  "/dev/null",
			Extended: []string{"diff --git a/" + rel(op.path) + " b/" + rel(op.path), "deleted file mode 100644"},
			Hunks:    hunks(op.before, nil),
		}
	case opMove:
		fd := &diff.FileDiff{
			OrigName: "a/" + rel(op.path),
			NewName:  "b/" + rel(op.newPath),
			Extended: []string{
				"diff --git a/" + rel(op.path) + " b/" + rel(op.newPath),
				"rename from " + rel(op.path),
				"rename to " + rel(op.newPath),
			},
		}
		if !bytes.Equal(op.before, op.content) {
			fd.Hunks = hunks(op.before, op.content)
		}
		return fd
	default:
		if bytes.Equal(op.before, op.content) {
			return nil
		}
		return &diff.FileDiff{
			OrigName: "a/" + rel(op.path),
			NewName:  "b/" + rel(op.path),
			Extended: []string{"diff --git a/" + rel(op.path) + " b/" + rel(op.path)},
			Hunks:    hunks(op.before, op.content),
		}
	}
}

// hunks returns one hunk spanning everything between the common leading
// and trailing lines of before and after, with diffContext lines of
// context on each side.
func hunks(before, after []byte) []*diff.Hunk {
	a, b := splitLines(before), splitLines(after)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	if prefix == len(a) && prefix == len(b) {
		return nil
	}

	start := max(0, prefix-diffContext)
	aEnd, bEnd := len(a)-suffix, len(b)-suffix
	trailing := min(suffix, diffContext)

	var body bytes.Buffer
	for _, l := range a[start:prefix] {
		writeLine(&body, ' ', l)
	}
	for _, l := range a[prefix:aEnd] {
		writeLine(&body, '-', l)
	}
	for _, l := range b[prefix:bEnd] {
		writeLine(&body, '+', l)
	}
	for _, l := range a[aEnd : aEnd+trailing] {
		writeLine(&body, ' ', l)
	}

	h := &diff.Hunk{
		OrigLines: int32(prefix - start + aEnd - prefix + trailing),
		NewLines:  int32(prefix - start + bEnd - prefix + trailing),
		Body:      body.Bytes(),
	}
	h.OrigStartLine = startLine(start, h.OrigLines)
	h.NewStartLine = startLine(start, h.NewLines)
	return []*diff.Hunk{h}
}

// startLine follows the unified format: one-based, or the line before the
// hunk when it is empty on that side.
func startLine(start int, lines int32) int32 {
	if lines == 0 {
		return int32(start)
	}
	return int32(start + 1)
}

func splitLines(content []byte) []string {
	var lines []string
	for len(content) > 0 {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, string(content))
			break
		}
		lines = append(lines, string(content[:i+1]))
		content = content[i+1:]
	}
	return lines
}

func writeLine(b *bytes.Buffer, marker byte, line string) {
	b.WriteByte(marker)
	b.WriteString(line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		b.WriteByte('\n')
		b.WriteString(noNewline)
	}
}
