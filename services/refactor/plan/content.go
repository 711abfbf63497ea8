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

// ContentEdit reduces a whole-content rewrite to the smallest single
// replace edit that turns before into after.
//
// Manifest editors work on full documents; ContentEdit lets their output
// travel through a plan as a precise edit instead of a file rewrite.
// Returns false when the contents are identical.
func ContentEdit(path string, before, after []byte) (TextEdit, bool) {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	if prefix == len(before) && prefix == len(after) {
		return TextEdit{}, false
	}

	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}

	li := NewLineIndex(before)
	return TextEdit{
		FilePath: path,
		Kind:     EditReplace,
		Range:    li.RangeOf(prefix, len(before)-suffix),
		NewText:  string(after[prefix : len(after)-suffix]),
	}, true
}
