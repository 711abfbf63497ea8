// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rust

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

// cargoManifest is the subset of Cargo.toml the plugin reads. Dependency
// values are either a version string or a table.
type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

func parseCargo(path string, content []byte) (*cargoManifest, error) {
	var m cargoManifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", lang.ErrNotManifest, path, err)
	}
	return &m, nil
}

func (m *cargoManifest) sections() map[string]map[string]any {
	out := map[string]map[string]any{
		"dependencies":       m.Dependencies,
		"dev-dependencies":   m.DevDependencies,
		"build-dependencies": m.BuildDependencies,
	}
	if m.Workspace != nil {
		out["workspace.dependencies"] = m.Workspace.Dependencies
	}
	return out
}

var sectionOrder = []string{"dependencies", "dev-dependencies", "build-dependencies", "workspace.dependencies"}

// dependencies flattens the dependency sections in a stable order.
func (m *cargoManifest) dependencies() []lang.Dependency {
	var deps []lang.Dependency
	sections := m.sections()
	for _, section := range sectionOrder {
		names := make([]string, 0, len(sections[section]))
		for name := range sections[section] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := lang.Dependency{Name: name, Section: section}
			switch v := sections[section][name].(type) {
			case string:
				d.Version = v
			case map[string]any:
				d.Version, _ = v["version"].(string)
				d.Path, _ = v["path"].(string)
			}
			deps = append(deps, d)
		}
	}
	return deps
}

// tomlLine is one physical line with the table it belongs to.
type tomlLine struct {
	start, end int
	text       string

	// table is the enclosing table name; header lines carry their own.
	table  string
	header bool
}

var headerRE = regexp.MustCompile(`^\s*\[\[?\s*([^\]]+?)\s*\]\]?\s*(#.*)?$`)

// scanLines splits content into lines tagged with their table. Lines of a
// multi-line array keep the table of the key that opened it.
func scanLines(content []byte) []tomlLine {
	var lines []tomlLine
	table := ""
	depth := 0
	for start := 0; start < len(content); {
		end := start
		for end < len(content) && content[end] != '\n' {
			end++
		}
		if end < len(content) {
			end++
		}
		text := strings.TrimRight(string(content[start:end]), "\r\n")
		l := tomlLine{start: start, end: end, text: text, table: table}
		if depth == 0 {
			if m := headerRE.FindStringSubmatch(text); m != nil {
				table = normalizeTable(m[1])
				l.table, l.header = table, true
			}
		}
		if !l.header {
			depth += bracketDepth(text)
			if depth < 0 {
				depth = 0
			}
		}
		lines = append(lines, l)
		start = end
	}
	return lines
}

// bracketDepth counts unbalanced array brackets outside strings and
// comments.
func bracketDepth(text string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return depth
		case c == '[':
			depth++
		case c == ']':
			depth--
		}
	}
	return depth
}

func normalizeTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return strings.Join(parts, ".")
}

// dependencyTable splits a table name into its dependency section and the
// dependency a `[dependencies.name]` table declares.
func dependencyTable(table string) (section, dep string, ok bool) {
	for _, s := range sectionOrder {
		if table == s {
			return s, "", true
		}
		if strings.HasPrefix(table, s+".") {
			return s, strings.TrimPrefix(table, s+"."), true
		}
	}
	if strings.HasPrefix(table, "target.") {
		for _, s := range []string{"dependencies", "dev-dependencies", "build-dependencies"} {
			if i := strings.Index(table, "."+s); i > 0 {
				rest := table[i+len(s)+1:]
				return table[:i+len(s)+1], strings.TrimPrefix(rest, "."), true
			}
		}
	}
	return "", "", false
}

var keyRE = regexp.MustCompile(`^(\s*)("[^"]+"|'[^']+'|[A-Za-z0-9_-]+)(\s*=\s*)`)

// lineKey returns the bare key of a key/value line and its byte span
// within the line.
func lineKey(text string) (string, int, int, bool) {
	m := keyRE.FindStringSubmatchIndex(text)
	if m == nil {
		return "", 0, 0, false
	}
	return strings.Trim(text[m[4]:m[5]], `"'`), m[4], m[5], true
}

func splice(content []byte, start, end int, repl string) []byte {
	out := make([]byte, 0, len(content)-(end-start)+len(repl))
	out = append(out, content[:start]...)
	out = append(out, repl...)
	return append(out, content[end:]...)
}

// tomlString renders s as a basic TOML string.
func tomlString(s string) string {
	return strconv.Quote(s)
}

var pathRE = regexp.MustCompile(`(\bpath\s*=\s*)("([^"\\]*)"|'([^']*)')`)

// lineValueString returns the string value of a `key = "value"` line.
func lineValueString(text, key string) (string, int, int, bool) {
	re := regexp.MustCompile(`(^|[\s{,])` + regexp.QuoteMeta(key) + `\s*=\s*"([^"\\]*)"`)
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return "", 0, 0, false
	}
	return text[m[4]:m[5]], m[4], m[5], true
}

// renderDependency renders a dependency value parsed from another
// manifest as an inline value.
func renderDependency(v any) string {
	switch t := v.(type) {
	case string:
		return tomlString(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+" = "+renderValue(t[k]))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return renderValue(v)
	}
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return tomlString(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, renderValue(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		return renderDependency(t)
	default:
		b, err := toml.Marshal(v)
		if err != nil {
			return `""`
		}
		return strings.TrimSpace(string(b))
	}
}
