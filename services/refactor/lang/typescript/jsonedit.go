// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typescript

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// Byte-level package.json editing. jsonparser locates values without
// re-encoding the document, so every edit below touches only the bytes it
// changes and the rest of the file keeps its formatting.

var errNotContainer = errors.New("value is not an object or array")

// span returns the byte span of the raw value at keys, quotes included.
func span(data []byte, keys ...string) (start, end int, typ jsonparser.ValueType, err error) {
	value, typ, end, err := jsonparser.Get(data, keys...)
	if err != nil {
		return 0, 0, typ, err
	}
	start = end - len(value)
	if typ == jsonparser.String {
		start -= 2
	}
	return start, end, typ, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func splice(data []byte, start, end int, text string) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(text))
	out = append(out, data[:start]...)
	out = append(out, text...)
	return append(out, data[end:]...)
}

func isWS(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// keySpan returns the span of the quoted key owning the value at
// valueStart.
func keySpan(data []byte, valueStart int) (int, int, bool) {
	i := valueStart - 1
	for i >= 0 && isWS(data[i]) {
		i--
	}
	if i < 0 || data[i] != ':' {
		return 0, 0, false
	}
	i--
	for i >= 0 && isWS(data[i]) {
		i--
	}
	if i < 0 || data[i] != '"' {
		return 0, 0, false
	}
	end := i + 1
	for i--; i >= 0; i-- {
		if data[i] == '"' && (i == 0 || data[i-1] != '\\') {
			return i, end, true
		}
	}
	return 0, 0, false
}

// removeEntry deletes [start, end) together with one adjoining comma, and
// the whole line when nothing else is left on it.
func removeEntry(data []byte, start, end int) []byte {
	j := end
	for j < len(data) && isWS(data[j]) {
		j++
	}
	if j < len(data) && data[j] == ',' {
		end = j + 1
	} else {
		i := start - 1
		for i >= 0 && isWS(data[i]) {
			i--
		}
		if i >= 0 && data[i] == ',' {
			start = i
		}
	}

	ls := start
	for ls > 0 && (data[ls-1] == ' ' || data[ls-1] == '\t') {
		ls--
	}
	le := end
	for le < len(data) && (data[le] == ' ' || data[le] == '\t' || data[le] == '\r') {
		le++
	}
	if (ls == 0 || data[ls-1] == '\n') && le < len(data) && data[le] == '\n' {
		start, end = ls, le+1
	}
	return splice(data, start, end, "")
}

// removeKey deletes the member at keys.
func removeKey(data []byte, keys ...string) ([]byte, bool) {
	start, end, _, err := span(data, keys...)
	if err != nil {
		return data, false
	}
	ks, _, ok := keySpan(data, start)
	if !ok {
		return data, false
	}
	return removeEntry(data, ks, end), true
}

// insertEntry appends text as the last entry of the object or array
// spanning [start, end), following the indentation of existing entries.
func insertEntry(data []byte, start, end int, text string) ([]byte, error) {
	if end-start < 2 || (data[start] != '{' && data[start] != '[') {
		return nil, errNotContainer
	}
	closing := end - 1
	k := closing - 1
	for k > start && isWS(data[k]) {
		k--
	}
	if k == start {
		indent := lineIndent(data, start)
		return splice(data, start+1, closing, "\n"+indent+"  "+text+"\n"+indent), nil
	}
	first := start + 1
	for first < closing && isWS(data[first]) {
		first++
	}
	sep := string(data[start+1 : first])
	if sep == "" {
		sep = " "
	}
	return splice(data, k+1, k+1, ","+sep+text), nil
}

func lineIndent(data []byte, at int) string {
	ls := at
	for ls > 0 && data[ls-1] != '\n' {
		ls--
	}
	i := ls
	for i < len(data) && (data[i] == ' ' || data[i] == '\t') {
		i++
	}
	return string(data[ls:i])
}

// setMember sets key inside the object at parent to the raw JSON value,
// creating the member when absent.
func setMember(data []byte, parent []string, key, raw string) ([]byte, error) {
	keys := append(append([]string(nil), parent...), key)
	if start, end, _, err := span(data, keys...); err == nil {
		return splice(data, start, end, raw), nil
	}
	var start, end int
	if len(parent) == 0 {
		start, end = rootSpan(data)
		if start < 0 {
			return nil, errNotContainer
		}
	} else {
		var err error
		start, end, _, err = span(data, parent...)
		if err != nil {
			return nil, fmt.Errorf("locate %v: %w", parent, err)
		}
	}
	return insertEntry(data, start, end, quote(key)+": "+raw)
}

func rootSpan(data []byte) (int, int) {
	start := 0
	for start < len(data) && isWS(data[start]) {
		start++
	}
	end := len(data)
	for end > start && isWS(data[end-1]) {
		end--
	}
	if start >= end || data[start] != '{' || data[end-1] != '}' {
		return -1, -1
	}
	return start, end
}

// stringElements returns the string elements of the array at keys with
// their index.
func stringElements(data []byte, keys ...string) []string {
	var out []string
	_, _ = jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, _ error) {
		if typ != jsonparser.String {
			out = append(out, "")
			return
		}
		s, err := jsonparser.ParseString(value)
		if err != nil {
			s = string(value)
		}
		out = append(out, s)
	}, keys...)
	return out
}

func indexKey(i int) string { return fmt.Sprintf("[%d]", i) }
