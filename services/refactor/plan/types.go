// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan defines the refactoring plan data model.
//
// A Plan is pure data: an ordered list of per-file edits plus the content
// digests captured when the plan was computed. Producing a plan never
// touches storage; applying one is the job of the apply package.
//
// # Positions
//
// All positions are zero-based. Line counts newline-terminated lines and
// Character is a byte offset within the line, matching what tree-sitter
// reports for node columns. Ranges are half-open: End is exclusive.
//
// # Thread Safety
//
// Plan values are not synchronized. Treat a Plan as immutable once it has
// been returned by a generator; use Clone before mutating a shared copy.
package plan

import (
	"path/filepath"
	"sort"
	"time"
)

// Version is the current plan_version written into every generated plan.
const Version = 1

// Type is the plan_type discriminator.
type Type string

const (
	TypeRename    Type = "RenamePlan"
	TypeExtract   Type = "ExtractPlan"
	TypeInline    Type = "InlinePlan"
	TypeMove      Type = "MovePlan"
	TypeReorder   Type = "ReorderPlan"
	TypeTransform Type = "TransformPlan"
	TypeDelete    Type = "DeletePlan"
)

// Kind is the operation family recorded in plan metadata.
type Kind string

const (
	KindRename    Kind = "rename"
	KindExtract   Kind = "extract"
	KindInline    Kind = "inline"
	KindMove      Kind = "move"
	KindReorder   Kind = "reorder"
	KindTransform Kind = "transform"
	KindDelete    Kind = "delete"
)

var typeKinds = map[Type]Kind{
	TypeRename:    KindRename,
	TypeExtract:   KindExtract,
	TypeInline:    KindInline,
	TypeMove:      KindMove,
	TypeReorder:   KindReorder,
	TypeTransform: KindTransform,
	TypeDelete:    KindDelete,
}

// Kind returns the operation kind a plan type carries, and false for
// unknown plan types.
func (t Type) Kind() (Kind, bool) {
	k, ok := typeKinds[t]
	return k, ok
}

// Valid reports whether t is one of the seven plan types.
func (t Type) Valid() bool {
	_, ok := typeKinds[t]
	return ok
}

// TypeForKind maps an operation kind back to its plan type.
func TypeForKind(k Kind) (Type, bool) {
	for t, kind := range typeKinds {
		if kind == k {
			return t, true
		}
	}
	return "", false
}

// Impact is a coarse estimate of how much of the workspace a plan touches.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// EstimateImpact buckets an affected file count.
func EstimateImpact(affectedFiles int) Impact {
	switch {
	case affectedFiles <= 3:
		return ImpactLow
	case affectedFiles <= 10:
		return ImpactMedium
	default:
		return ImpactHigh
	}
}

// EditKind distinguishes in-file text replacement from whole-file operations.
type EditKind string

const (
	// EditReplace replaces Range with NewText. The zero value means replace.
	EditReplace EditKind = "replace"

	// EditInsert inserts NewText at Range.Start. Range must be empty.
	EditInsert EditKind = "insert"

	// EditDelete removes Range. NewText must be empty.
	EditDelete EditKind = "delete"

	// EditCreateFile creates FilePath with NewText as its content.
	EditCreateFile EditKind = "create_file"

	// EditDeleteFile removes FilePath.
	EditDeleteFile EditKind = "delete_file"

	// EditMoveFile renames FilePath to NewPath after text edits on
	// FilePath have been applied.
	EditMoveFile EditKind = "move_file"
)

// IsFileOp reports whether the kind operates on a whole file.
func (k EditKind) IsFileOp() bool {
	return k == EditCreateFile || k == EditDeleteFile || k == EditMoveFile
}

// IsText reports whether the kind edits text inside an existing file.
func (k EditKind) IsText() bool {
	return k == "" || k == EditReplace || k == EditInsert || k == EditDelete
}

// TextEdit is a single edit to one file.
//
// Text edits (replace, insert, delete) address ranges of the file as it
// exists when the plan was computed. File operations address whole paths.
type TextEdit struct {
	FilePath    string   `json:"file_path"`
	Kind        EditKind `json:"kind,omitempty"`
	Range       Range    `json:"range"`
	NewText     string   `json:"new_text"`
	NewPath     string   `json:"new_path,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EffectiveKind returns Kind, treating the zero value as replace.
func (e TextEdit) EffectiveKind() EditKind {
	if e.Kind == "" {
		return EditReplace
	}
	return e.Kind
}

// SelectorKind is what a Selector points at.
type SelectorKind string

const (
	SelectorSymbol    SelectorKind = "symbol"
	SelectorFile      SelectorKind = "file"
	SelectorDirectory SelectorKind = "directory"
)

// Selector describes the target of an operation.
//
// For symbols either Position or Name must be set; Position wins when both
// are present and Name is the fallback.
type Selector struct {
	Kind     SelectorKind `json:"kind"`
	Path     string       `json:"path"`
	Position *Position    `json:"position,omitempty"`
	Name     string       `json:"name,omitempty"`
}

// Warning codes.
const (
	WarnAmbiguousTarget       = "ambiguous_target"
	WarnUnsupportedCap        = "unsupported_capability"
	WarnHeuristicFallback     = "heuristic_fallback"
	WarnParseError            = "parse_error"
	WarnManifestConflict      = "manifest_conflict"
	WarnDependencyCycle       = "dependency_cycle"
	WarnDanglingReference     = "dangling_reference"
	WarnPartialUnusedImport   = "partial_unused_import"
	WarnLexicalMatch          = "lexical_match"
	WarnParametersNotInferred = "parameters_not_inferred"
	WarnNoChanges             = "no_changes"
	WarnDuplicatedEvaluation  = "duplicated_evaluation"
)

// Candidate is one possible resolution of an ambiguous target.
type Candidate struct {
	Path     string    `json:"path"`
	Name     string    `json:"name,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Position *Position `json:"position,omitempty"`
}

// Warning is a structured, non-fatal issue found while planning or applying.
type Warning struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Summary counts the files a plan touches.
type Summary struct {
	AffectedFiles int `json:"affected_files"`
	CreatedFiles  int `json:"created_files"`
	DeletedFiles  int `json:"deleted_files"`
}

// Metadata describes how a plan was produced.
type Metadata struct {
	Kind            Kind      `json:"kind"`
	Language        string    `json:"language"`
	EstimatedImpact Impact    `json:"estimated_impact"`
	CreatedAt       time.Time `json:"created_at"`
}

// Plan is an immutable, serializable description of a multi-file edit.
type Plan struct {
	ID            string            `json:"id,omitempty"`
	PlanType      Type              `json:"plan_type"`
	PlanVersion   int               `json:"plan_version"`
	Edits         []TextEdit        `json:"edits"`
	Summary       Summary           `json:"summary"`
	Warnings      []Warning         `json:"warnings"`
	Metadata      Metadata          `json:"metadata"`
	FileChecksums map[string]string `json:"file_checksums"`
	WorkspaceRoot string            `json:"workspace_root,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Edits = append([]TextEdit(nil), p.Edits...)
	out.Warnings = make([]Warning, len(p.Warnings))
	for i, w := range p.Warnings {
		w.Candidates = append([]Candidate(nil), w.Candidates...)
		out.Warnings[i] = w
	}
	out.FileChecksums = make(map[string]string, len(p.FileChecksums))
	for k, v := range p.FileChecksums {
		out.FileChecksums[k] = v
	}
	return &out
}

// Paths returns every path the plan reads or writes, sorted.
// Move destinations and created files are included.
func (p *Plan) Paths() []string {
	seen := make(map[string]struct{})
	for _, e := range p.Edits {
		seen[filepath.Clean(e.FilePath)] = struct{}{}
		if e.NewPath != "" {
			seen[filepath.Clean(e.NewPath)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// EditsByFile groups text edits by file path, preserving plan order.
// File operations are not included.
func (p *Plan) EditsByFile() map[string][]TextEdit {
	out := make(map[string][]TextEdit)
	for _, e := range p.Edits {
		if e.EffectiveKind().IsText() {
			path := filepath.Clean(e.FilePath)
			out[path] = append(out[path], e)
		}
	}
	return out
}

// HasWarning reports whether the plan carries a warning with code.
func (p *Plan) HasWarning(code string) bool {
	for _, w := range p.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
