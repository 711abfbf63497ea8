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
	"fmt"
	"path/filepath"
)

// allowedKinds lists the edit kinds each plan type may carry.
var allowedKinds = map[Type]map[EditKind]bool{
	TypeRename: {
		EditReplace: true, EditInsert: true, EditDelete: true,
		EditMoveFile: true, EditCreateFile: true, EditDeleteFile: true,
	},
	TypeExtract: {
		EditReplace: true, EditInsert: true, EditDelete: true,
		EditCreateFile: true,
	},
	TypeInline: {
		EditReplace: true, EditInsert: true, EditDelete: true,
	},
	TypeMove: {
		EditReplace: true, EditInsert: true, EditDelete: true,
		EditMoveFile: true, EditCreateFile: true, EditDeleteFile: true,
	},
	TypeReorder: {
		EditReplace: true, EditInsert: true, EditDelete: true,
	},
	TypeTransform: {
		EditReplace: true, EditInsert: true, EditDelete: true,
	},
	TypeDelete: {
		EditReplace: true, EditInsert: true, EditDelete: true,
		EditDeleteFile: true,
	},
}

// Validate checks that p matches the structural schema for its plan type.
//
// # Description
//
// Validate rejects plans that could not have come from a generator: an
// unknown plan_type or version, metadata whose kind disagrees with the
// type, relative or empty paths, unordered ranges, edit kinds the plan type
// never produces, overlapping text edits within a file, a file both
// deleted and edited after deletion, and pre-existing paths that carry no
// checksum.
//
// # Outputs
//
//	error - nil, or an *Error with code INVALID_REQUEST listing every problem.
func Validate(p *Plan) error {
	if p == nil {
		return Errorf(CodeInvalidRequest, "plan is nil")
	}

	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	kind, ok := p.PlanType.Kind()
	if !ok {
		add("unknown plan_type %q", p.PlanType)
	}
	if p.PlanVersion != Version {
		add("unsupported plan_version %d (want %d)", p.PlanVersion, Version)
	}
	if ok && p.Metadata.Kind != kind {
		add("metadata.kind %q does not match plan_type %s", p.Metadata.Kind, p.PlanType)
	}

	allowed := allowedKinds[p.PlanType]
	created := make(map[string]bool)
	deleted := make(map[string]bool)
	moved := make(map[string]bool)

	for i, e := range p.Edits {
		k := e.EffectiveKind()
		if e.FilePath == "" {
			add("edit %d: empty file_path", i)
			continue
		}
		if !filepath.IsAbs(e.FilePath) {
			add("edit %d: file_path %q is not absolute", i, e.FilePath)
		}
		if allowed != nil && !allowed[k] {
			add("edit %d: kind %q not allowed in %s", i, k, p.PlanType)
		}
		if !e.Range.Ordered() {
			add("edit %d: range end precedes start", i)
		}
		path := filepath.Clean(e.FilePath)

		switch k {
		case EditInsert:
			if !e.Range.Empty() {
				add("edit %d: insert must have an empty range", i)
			}
		case EditDelete:
			if e.NewText != "" {
				add("edit %d: delete must not carry new_text", i)
			}
		case EditMoveFile:
			if e.NewPath == "" || !filepath.IsAbs(e.NewPath) {
				add("edit %d: move_file needs an absolute new_path", i)
			} else if filepath.Clean(e.NewPath) == path {
				add("edit %d: move_file source equals destination", i)
			}
			if moved[path] {
				add("edit %d: %s moved twice", i, path)
			}
			moved[path] = true
		case EditCreateFile:
			if created[path] {
				add("edit %d: %s created twice", i, path)
			}
			created[path] = true
		case EditDeleteFile:
			deleted[path] = true
		}

		if k.IsText() && created[path] {
			add("edit %d: text edit on file created by the same plan", i)
		}
		if (k.IsText() || k == EditMoveFile) && deleted[path] {
			add("edit %d: %s is edited after deletion", i, path)
		}
		if k != EditCreateFile {
			if _, ok := p.FileChecksums[path]; !ok {
				if _, raw := p.FileChecksums[e.FilePath]; !raw {
					add("edit %d: no checksum recorded for %s", i, e.FilePath)
				}
			}
		}
	}

	if err := CheckOverlaps(p.Edits); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return Wrap(CodeInvalidRequest, errors.Join(problems...), "plan failed schema validation").
		WithSuggestion("regenerate the plan instead of editing it by hand")
}
