// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lang defines the per-language plugin contract and the
// Capability Registry that dispatches to it.
//
// # Description
//
// A language plugin implements zero or more capability interfaces:
//
//   - ReferenceRewriter: parse and rewrite cross-file references (imports,
//     module declarations, require calls).
//   - ManifestEditor: read and edit the language's package manifest.
//   - WorkspaceEditor: maintain workspace member lists.
//   - ASTOperator: symbol-level operations used by the plan generators.
//
// The core never branches on a language identifier; it asks the registry
// for a Descriptor and type-asserts nothing. Descriptors expose each
// capability as a nil-able field.
//
// # Thread Safety
//
// Plugins must be safe for concurrent use. The registry is immutable after
// construction and needs no locking.
package lang

import (
	"context"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Capability names an optional plugin interface.
type Capability string

const (
	CapReferences Capability = "references"
	CapManifest   Capability = "manifest"
	CapWorkspace  Capability = "workspace"
	CapAST        Capability = "ast"
	CapModules    Capability = "modules"
)

// Plugin identifies a language. Capability interfaces are discovered on the
// same value by the registry.
type Plugin interface {
	// ID returns the stable language identifier, e.g. "go".
	ID() string

	// Extensions returns recognised file extensions including the dot.
	Extensions() []string

	// ManifestName returns the package manifest file name, or "".
	ManifestName() string
}

// DirectoryScoped is implemented by plugins whose package boundary is a
// directory, so that files in the same directory see each other's
// top-level symbols without imports.
type DirectoryScoped interface {
	DirectoryScoped() bool
}

// ReferenceKind classifies a reference.
type ReferenceKind string

const (
	RefImport        ReferenceKind = "import"
	RefReexport      ReferenceKind = "reexport"
	RefRequire       ReferenceKind = "require"
	RefDynamicImport ReferenceKind = "dynamic_import"
	RefUse           ReferenceKind = "use"
	RefModuleDecl    ReferenceKind = "module_decl"
)

// Binding is one name a reference brings into scope.
type Binding struct {
	// Name is the exported name as written in the reference.
	Name string `json:"name"`

	// Alias is the local name when it differs from Name.
	Alias string `json:"alias,omitempty"`

	// NameRange covers Name in the source.
	NameRange plan.Range `json:"name_range"`
}

// Local returns the name the binding introduces into the file.
func (b Binding) Local() string {
	if b.Alias != "" {
		return b.Alias
	}
	return b.Name
}

// Reference is one cross-file reference found in a source file.
type Reference struct {
	Kind ReferenceKind `json:"kind"`

	// Specifier is the referenced module as written, without quotes.
	Specifier string `json:"specifier"`

	// SpecifierRange covers Specifier exactly; quotes are outside it.
	SpecifierRange plan.Range `json:"specifier_range"`

	// StatementRange covers the whole lines of the reference statement,
	// including the trailing newline, so deleting it removes the lines.
	StatementRange plan.Range `json:"statement_range"`

	// Bindings are named imports.
	Bindings []Binding `json:"bindings,omitempty"`

	// Namespace is the local name bound to the whole module (Go package
	// name, namespace or default import, Python module alias).
	Namespace string `json:"namespace,omitempty"`

	// SideEffect marks references that bind nothing on purpose, such as
	// blank or side-effect imports. They are never reported unused.
	SideEffect bool `json:"side_effect,omitempty"`

	// Wildcard marks glob imports.
	Wildcard bool `json:"wildcard,omitempty"`
}

// Move describes a file or directory relocation from the point of view of
// one file being rewritten.
type Move struct {
	// Root is the workspace root.
	Root string

	// OldPath and NewPath are absolute; for directories they are the
	// directory roots.
	OldPath string
	NewPath string
	IsDir   bool

	// NewLocation maps the planned location of any moved file. It returns
	// the input unchanged for files that do not move.
	NewLocation func(path string) string

	// OldPackage and NewPackage are package identities when the move also
	// changes one (consolidation or package rename). Empty otherwise.
	OldPackage string
	NewPackage string

	// Warn receives warnings about references rewritten in a degraded
	// form. It may be nil, and may be called concurrently.
	Warn func(plan.Warning)
}

// Warnf reports a warning through m.Warn when it is set.
func (m Move) Warnf(code, message string) {
	if m.Warn != nil {
		m.Warn(plan.Warning{Code: code, Message: message})
	}
}

// Locate returns where path will live after the move.
func (m Move) Locate(path string) string {
	if m.NewLocation == nil {
		return path
	}
	return m.NewLocation(path)
}

// Rename describes a symbol rename from the point of view of one
// referencing file.
type Rename struct {
	Root           string
	DefinitionPath string
	OldName        string
	NewName        string
}

// ReferenceRewriter parses and rewrites references in source text.
//
// Every method works on the content passed in; implementations may read
// other files (manifests, probe targets) through their own filesystem but
// never write.
type ReferenceRewriter interface {
	// ParseReferences returns every reference in content.
	// A syntax error returns ErrParse.
	ParseReferences(ctx context.Context, path string, content []byte) ([]Reference, error)

	// Resolve returns the absolute paths (files or directories) a
	// reference may point to. External references resolve to nothing.
	Resolve(ctx context.Context, root, importer string, ref Reference) []string

	// RewriteForRename returns edits to reference statements that name
	// the renamed symbol.
	RewriteForRename(ctx context.Context, path string, content []byte, rename Rename) ([]plan.TextEdit, error)

	// RewriteForMove returns edits keeping path's references valid after
	// the move, recomputing relative paths by the language's own rules.
	// path may itself be moving; m.Locate(path) is its new home.
	RewriteForMove(ctx context.Context, path string, content []byte, m Move) ([]plan.TextEdit, error)

	// HasReference reports whether content already references specifier.
	HasReference(ctx context.Context, path string, content []byte, specifier string) (bool, error)

	// AddReference returns an insertion edit adding a reference to
	// specifier in the file's prevailing style.
	AddReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, error)

	// RemoveReference returns an edit deleting the reference to specifier.
	// The bool is false when no such reference exists.
	RemoveReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, bool, error)
}

// ModuleDeclarer is implemented by languages whose source files must be
// declared by a parent module file, such as Rust's `mod name;`.
type ModuleDeclarer interface {
	// ModuleParent returns the file that must declare path as a module and
	// the reference to add there. The parent may not exist yet. ok is false
	// for crate roots and files outside any crate.
	ModuleParent(ctx context.Context, root, path string) (parent, specifier string, ok bool)

	// ModuleFile returns the content of a new parent module file exposing
	// the modules named by specifiers.
	ModuleFile(specifiers []string) string
}

// Dependency is one declared dependency in a manifest.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`

	// Path is a local path dependency as written, relative to the
	// manifest's directory.
	Path string `json:"path,omitempty"`

	// Section is the manifest section, e.g. "dependencies".
	Section string `json:"section,omitempty"`
}

// Spec renders the dependency requirement for conflict messages.
func (d Dependency) Spec() string {
	switch {
	case d.Path != "" && d.Version != "":
		return d.Version + " (path " + d.Path + ")"
	case d.Path != "":
		return "path " + d.Path
	default:
		return d.Version
	}
}

// Manifest is the parsed subset of a package manifest the core needs.
type Manifest struct {
	Path         string       `json:"path"`
	Name         string       `json:"name"`
	Dependencies []Dependency `json:"dependencies"`
}

// Document is a manifest path with its content.
type Document struct {
	Path    string
	Content []byte
}

// DependencyConflict reports a dependency declared differently by two
// manifests being merged.
type DependencyConflict struct {
	Name       string `json:"name"`
	TargetSpec string `json:"target_spec"`
	SourceSpec string `json:"source_spec"`
}

// MergeResult is the outcome of merging one manifest into another.
type MergeResult struct {
	// Content is the new target manifest content.
	Content []byte

	// Added lists dependencies copied from the source.
	Added []string

	// Conflicts lists dependencies left at the target's declaration.
	Conflicts []DependencyConflict

	// Dropped lists dependencies removed because they referred to either
	// side of the merge.
	Dropped []string
}

// ManifestEditor reads and edits a language's package manifest.
//
// Edit methods return the complete new content; callers reduce it to a
// minimal edit with plan.ContentEdit.
type ManifestEditor interface {
	ParseManifest(ctx context.Context, path string, content []byte) (*Manifest, error)

	// RewriteDependencyPaths updates local path dependencies that point
	// into oldDir so they point into newDir. manifestNewPath is where the
	// manifest will live afterwards; it may equal path.
	RewriteDependencyPaths(ctx context.Context, path string, content []byte, oldDir, newDir, manifestNewPath string) ([]byte, error)

	// RenameDependency renames a declared dependency.
	RenameDependency(ctx context.Context, path string, content []byte, oldName, newName string) ([]byte, error)

	// UpdatePackageIdentity changes the manifest's package name.
	UpdatePackageIdentity(ctx context.Context, path string, content []byte, newName string) ([]byte, error)

	// MergeManifests merges source's dependencies into target. Conflicts
	// are reported, never silently overwritten.
	MergeManifests(ctx context.Context, target, source Document) (*MergeResult, error)
}

// WorkspaceEditor maintains workspace member lists.
type WorkspaceEditor interface {
	// WorkspaceManifestName is the file declaring a workspace, e.g. go.work.
	WorkspaceManifestName() string

	// IsWorkspace reports whether content declares a workspace.
	IsWorkspace(ctx context.Context, path string, content []byte) bool

	// ListMembers returns member paths as written, relative to the
	// manifest's directory.
	ListMembers(ctx context.Context, path string, content []byte) ([]string, error)

	AddMember(ctx context.Context, path string, content []byte, member string) ([]byte, error)
	RemoveMember(ctx context.Context, path string, content []byte, member string) ([]byte, error)
}

// SymbolKind classifies declarations.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolType      SymbolKind = "type"
	SymbolInterface SymbolKind = "interface"
	SymbolVariable  SymbolKind = "variable"
	SymbolConstant  SymbolKind = "constant"
	SymbolEnum      SymbolKind = "enum"
	SymbolModule    SymbolKind = "module"
)

// Symbol is a declaration found in a file.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`

	// Range covers the declaration node.
	Range plan.Range `json:"range"`

	// DeclRange covers the outermost removable statement, including
	// export wrappers and decorators, extended to whole lines.
	DeclRange plan.Range `json:"decl_range"`

	NameRange plan.Range `json:"name_range"`

	// Params are the declared parameter ranges for callables.
	Params []plan.Range `json:"params,omitempty"`

	Exported bool   `json:"exported"`
	Parent   string `json:"parent,omitempty"`
}

// Call is one call site.
type Call struct {
	Range plan.Range   `json:"range"`
	Args  []plan.Range `json:"args"`
}

// LocalDecl is a local variable declaration eligible for inlining.
type LocalDecl struct {
	Name      string     `json:"name"`
	NameRange plan.Range `json:"name_range"`
	Value     string     `json:"value"`

	// StatementRange covers the declaring statement's whole lines.
	StatementRange plan.Range `json:"statement_range"`

	// Scope is the enclosing block; uses outside it are not affected.
	Scope plan.Range `json:"scope"`

	Constant   bool `json:"constant"`
	Reassigned bool `json:"reassigned"`
}

// RangeShape is the syntactic shape a selection must have.
type RangeShape string

const (
	ShapeStatements RangeShape = "statements"
	ShapeExpression RangeShape = "expression"
)

// TransformKind names a mechanical transformation.
type TransformKind string

const (
	TransformAddExport    TransformKind = "add_export"
	TransformRemoveExport TransformKind = "remove_export"
	TransformToAsync      TransformKind = "to_async"
)

// Templates renders language syntax for generated code.
type Templates interface {
	// IndentUnit is one level of indentation.
	IndentUnit() string

	// FunctionDecl renders a parameterless function whose body is already
	// indented one level.
	FunctionDecl(name, body string) string

	// CallStatement renders a call to name as a statement.
	CallStatement(name string) string

	// VariableDecl renders a local declaration.
	VariableDecl(name, expr string, constant bool) string
}

// ASTOperator provides syntax-aware operations for the plan generators.
type ASTOperator interface {
	// Symbols returns declarations, outermost first.
	Symbols(ctx context.Context, path string, content []byte) ([]Symbol, error)

	// Occurrences returns every identifier occurrence of name outside
	// comments and string literals.
	Occurrences(ctx context.Context, path string, content []byte, name string) ([]plan.Range, error)

	// IdentifierAt returns the identifier at pos.
	IdentifierAt(ctx context.Context, path string, content []byte, pos plan.Position) (string, plan.Range, error)

	// CompleteRange reports whether r selects whole syntax nodes of shape.
	CompleteRange(ctx context.Context, path string, content []byte, r plan.Range, shape RangeShape) (bool, error)

	// EnclosingDeclaration returns the top-level declaration containing r.
	EnclosingDeclaration(ctx context.Context, path string, content []byte, r plan.Range) (*Symbol, error)

	// LocalDeclaration returns the local declaration whose name is at pos.
	LocalDeclaration(ctx context.Context, path string, content []byte, pos plan.Position) (*LocalDecl, error)

	// Calls returns call sites of name, including qualified calls.
	Calls(ctx context.Context, path string, content []byte, name string) ([]Call, error)

	// Transform returns edits applying kind to sym, or
	// ErrUnsupportedTransform.
	Transform(ctx context.Context, path string, content []byte, sym Symbol, kind TransformKind) ([]plan.TextEdit, error)

	Templates() Templates

	// FilePreamble returns the text a new source file at path must start
	// with, such as a package clause. Empty when nothing is required.
	FilePreamble(ctx context.Context, path string) string
}
