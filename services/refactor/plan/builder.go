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
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Builder assembles a Plan from edits and warnings.
//
// Builder is not safe for concurrent use. Generators collect results from
// parallel work first and feed them to the builder on one goroutine.
type Builder struct {
	planType Type
	language string
	edits    []TextEdit
	warnings []Warning
	now      func() time.Time
}

// NewBuilder starts a plan of the given type.
func NewBuilder(t Type, language string) *Builder {
	return &Builder{planType: t, language: language, now: time.Now}
}

// SetLanguage overrides the detected language.
func (b *Builder) SetLanguage(language string) *Builder {
	b.language = language
	return b
}

// Add appends edits.
func (b *Builder) Add(edits ...TextEdit) *Builder {
	for _, e := range edits {
		e.FilePath = filepath.Clean(e.FilePath)
		if e.NewPath != "" {
			e.NewPath = filepath.Clean(e.NewPath)
		}
		b.edits = append(b.edits, e)
	}
	return b
}

// Warn appends warnings.
func (b *Builder) Warn(warnings ...Warning) *Builder {
	b.warnings = append(b.warnings, warnings...)
	return b
}

// Warnf appends a warning without candidates.
func (b *Builder) Warnf(code, message string) *Builder {
	return b.Warn(Warning{Code: code, Message: message})
}

// Edits returns the edits added so far.
func (b *Builder) Edits() []TextEdit {
	return b.edits
}

// Warnings returns the warnings added so far.
func (b *Builder) Warnings() []Warning {
	return b.warnings
}

// ChecksumPaths returns the pre-existing paths whose content must be
// captured: every path that is edited, moved, or deleted. Created files
// and move destinations are excluded.
func (b *Builder) ChecksumPaths() []string {
	seen := make(map[string]struct{})
	for _, e := range b.edits {
		if e.EffectiveKind() == EditCreateFile {
			continue
		}
		seen[e.FilePath] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func kindOrder(k EditKind) int {
	switch k {
	case EditMoveFile:
		return 1
	case EditCreateFile:
		return 2
	case EditDeleteFile:
		return 3
	default:
		return 0
	}
}

// Build produces the Plan. checksums must cover ChecksumPaths.
func (b *Builder) Build(checksums map[string]string, workspaceRoot string) *Plan {
	edits := append([]TextEdit(nil), b.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		a, c := edits[i], edits[j]
		if a.FilePath != c.FilePath {
			return a.FilePath < c.FilePath
		}
		ka, kc := kindOrder(a.EffectiveKind()), kindOrder(c.EffectiveKind())
		if ka != kc {
			return ka < kc
		}
		return a.Range.Start.Before(c.Range.Start)
	})

	summary := Summarize(edits)
	kind, _ := b.planType.Kind()
	if checksums == nil {
		checksums = map[string]string{}
	}
	warnings := b.warnings
	if warnings == nil {
		warnings = []Warning{}
	}
	if edits == nil {
		edits = []TextEdit{}
	}

	return &Plan{
		ID:          uuid.NewString(),
		PlanType:    b.planType,
		PlanVersion: Version,
		Edits:       edits,
		Summary:     summary,
		Warnings:    warnings,
		Metadata: Metadata{
			Kind:            kind,
			Language:        b.language,
			EstimatedImpact: EstimateImpact(summary.AffectedFiles + summary.CreatedFiles + summary.DeletedFiles),
			CreatedAt:       b.now().UTC(),
		},
		FileChecksums: checksums,
		WorkspaceRoot: workspaceRoot,
	}
}

// Summarize counts affected, created and deleted files in edits.
//
// A file is affected when it is edited in place or moved. Created and
// deleted files are counted separately and not as affected.
func Summarize(edits []TextEdit) Summary {
	affected := make(map[string]struct{})
	created := make(map[string]struct{})
	deleted := make(map[string]struct{})
	for _, e := range edits {
		path := filepath.Clean(e.FilePath)
		switch e.EffectiveKind() {
		case EditCreateFile:
			created[path] = struct{}{}
		case EditDeleteFile:
			deleted[path] = struct{}{}
		default:
			affected[path] = struct{}{}
		}
	}
	for path := range deleted {
		delete(affected, path)
	}
	return Summary{
		AffectedFiles: len(affected),
		CreatedFiles:  len(created),
		DeletedFiles:  len(deleted),
	}
}
