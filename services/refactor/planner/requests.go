// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
)

// Workspace is embedded in every request.
type Workspace struct {
	// WorkspaceRoot is the absolute workspace directory. Relative paths in
	// the request are resolved against it.
	WorkspaceRoot string `json:"workspace_root" validate:"required"`

	// Scope limits the files scanned for cross-file references.
	Scope refs.Scope `json:"scope,omitempty"`

	// Exclude adds patterns to the default excluded directories.
	Exclude []string `json:"exclude,omitempty"`
}

// RenameRequest renames a symbol, file or directory.
type RenameRequest struct {
	Workspace

	Target  plan.Selector `json:"target"`
	NewName string        `json:"new_name" validate:"required"`

	// UpdateImports defaults to true for file and directory renames.
	UpdateImports *bool `json:"update_imports,omitempty"`

	// NewPackageName also renames the package a directory declares in
	// its manifest, and rewrites importers to the new package name.
	NewPackageName string `json:"new_package_name,omitempty"`
}

// ExtractKind is what a selection is extracted into.
type ExtractKind string

const (
	ExtractFunction ExtractKind = "function"
	ExtractVariable ExtractKind = "variable"
	ExtractConstant ExtractKind = "constant"
)

// ExtractRequest extracts a selection into a new declaration.
type ExtractRequest struct {
	Workspace

	Path  string      `json:"path" validate:"required"`
	Range plan.Range  `json:"range"`
	Kind  ExtractKind `json:"kind" validate:"required,oneof=function variable constant"`
	Name  string      `json:"name" validate:"required"`
}

// InlineRequest inlines a local variable into its uses.
type InlineRequest struct {
	Workspace

	Target plan.Selector `json:"target"`
}

// MoveRequest moves a file, directory or top-level symbol.
type MoveRequest struct {
	Workspace

	Source plan.Selector `json:"source"`

	// Destination is the new path for files and directories, and the
	// destination file for symbols. Moving a file onto an existing
	// directory moves it into that directory.
	Destination string `json:"destination" validate:"required"`

	UpdateImports *bool `json:"update_imports,omitempty"`
}

// ReorderKind selects what is reordered.
type ReorderKind string

const (
	ReorderParameters ReorderKind = "parameters"
	ReorderImports    ReorderKind = "imports"
)

// ReorderRequest reorders a callable's parameters or a file's imports.
type ReorderRequest struct {
	Workspace

	Kind ReorderKind `json:"kind" validate:"required,oneof=parameters imports"`

	// Target is the callable for parameters and the file for imports.
	Target plan.Selector `json:"target"`

	// Order is the new parameter order: Order[i] is the old index of the
	// parameter that ends up at position i.
	Order []int `json:"order,omitempty"`
}

// TransformRequest applies a mechanical transformation to a symbol.
type TransformRequest struct {
	Workspace

	Target    plan.Selector      `json:"target"`
	Transform lang.TransformKind `json:"transform" validate:"required,oneof=add_export remove_export to_async"`
}

// DeleteKind selects what a delete removes.
type DeleteKind string

const (
	// DeleteTarget removes the selected file, directory or symbol.
	DeleteTarget DeleteKind = "target"

	// DeleteUnusedImports removes the unused imports of the selected file.
	DeleteUnusedImports DeleteKind = "unused_imports"
)

// DeleteRequest deletes a target or cleans up a file's unused imports.
type DeleteRequest struct {
	Workspace

	Kind   DeleteKind    `json:"kind,omitempty" validate:"omitempty,oneof=target unused_imports"`
	Target plan.Selector `json:"target"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
