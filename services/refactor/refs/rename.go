// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// SymbolRequest asks for the edits renaming a top-level symbol.
type SymbolRequest struct {
	Root           string  `json:"root"`
	DefinitionPath string  `json:"definition_path"`
	OldName        string  `json:"old_name"`
	NewName        string  `json:"new_name"`
	Options        Options `json:"options"`
}

// Importer is a file whose reference resolves to a target.
type Importer struct {
	Path      string         `json:"path"`
	Reference lang.Reference `json:"reference"`
}

// RenameSymbol computes the edits renaming OldName to NewName in its
// definition file and every file that can see the definition.
//
// # Description
//
// Qualifying files are the definition file, files of the same package
// for directory-scoped languages, and files with a reference resolving to
// the definition. Within a qualifying file, identifier occurrences are
// renamed outside reference statements; the plugin rewrites the
// reference statements themselves. An importer that binds the symbol
// under an alias only has its reference statement rewritten. An importer
// that declares its own symbol with the old name is left to the caller
// with a lexical_match warning.
//
// # Outputs
//
//	*Result - Affected files and warnings.
//	error - INVALID_REQUEST for bad names, UNSUPPORTED_CAPABILITY when the
//	definition's language has no AST operations.
func (u *Updater) RenameSymbol(ctx context.Context, req SymbolRequest) (*Result, error) {
	ctx, span := startSpan(ctx, "Updater.RenameSymbol",
		attribute.String("refs.definition", req.DefinitionPath),
		attribute.String("refs.old_name", req.OldName),
		attribute.String("refs.new_name", req.NewName),
	)
	defer span.End()
	start := time.Now()

	if req.OldName == "" || req.NewName == "" {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "old and new name are required")
	}
	if req.OldName == req.NewName {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "new name equals old name %q", req.OldName)
	}
	if !filepath.IsAbs(req.Root) || !filepath.IsAbs(req.DefinitionPath) {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "root and definition path must be absolute")
	}
	req.Root = filepath.Clean(req.Root)
	req.DefinitionPath = filepath.Clean(req.DefinitionPath)

	def, ok := u.registry.LookupByPath(req.DefinitionPath)
	if !ok || def.AST == nil {
		return nil, plan.Errorf(plan.CodeUnsupportedCapability, "no symbol support for %s", req.DefinitionPath).
			WithSuggestion("rename is available for: " + languagesWith(u.registry, lang.CapAST))
	}

	base, err := req.Options.Scope.base(req.Root)
	if err != nil {
		return nil, err
	}
	inv, err := u.walk(ctx, req.Root, base, req.Options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", base, err)
	}
	sources := mergeSorted(inv.sources, []string{req.DefinitionPath})
	defDir := filepath.Dir(req.DefinitionPath)

	var lexical []plan.Warning
	lexicalAt := make([]*plan.Warning, len(sources))
	index := make(map[string]int, len(sources))
	for i, p := range sources {
		index[p] = i
	}

	rename := lang.Rename{Root: req.Root, DefinitionPath: req.DefinitionPath, OldName: req.OldName, NewName: req.NewName}
	files, warnings, err := u.scan(ctx, sources, func(ctx context.Context, d *lang.Descriptor, path string, content []byte) (*AffectedFile, error) {
		peer := path == req.DefinitionPath ||
			(def.DirectoryScoped && d.ID == def.ID && filepath.Dir(path) == defDir)

		if peer {
			if d.AST == nil {
				return nil, nil
			}
			occ, err := d.AST.Occurrences(ctx, path, content, req.OldName)
			if err != nil {
				return nil, err
			}
			return &AffectedFile{Path: path, Edits: occurrenceEdits(path, occ, nil, req)}, nil
		}

		refs, err := d.References.ParseReferences(ctx, path, content)
		if err != nil {
			return nil, err
		}
		var relevant []lang.Reference
		bound, qualified, wildcard := false, false, false
		for _, ref := range refs {
			if !u.refersTo(ctx, req.Root, path, ref, req.DefinitionPath, def.DirectoryScoped) {
				continue
			}
			relevant = append(relevant, ref)
			switch {
			case ref.Wildcard:
				wildcard = true
			case len(ref.Bindings) == 0:
				qualified = true
			case ref.Namespace != "":
				qualified = true
			}
			for _, b := range ref.Bindings {
				if b.Name == req.OldName && b.Alias == "" {
					bound = true
				}
			}
		}
		if len(relevant) == 0 {
			return nil, nil
		}

		edits, err := d.References.RewriteForRename(ctx, path, content, rename)
		if err != nil {
			return nil, err
		}
		if (bound || qualified || wildcard) && d.AST != nil {
			if u.declares(ctx, d, path, content, req.OldName) {
				lexicalAt[index[path]] = &plan.Warning{
					Code:    plan.WarnLexicalMatch,
					Message: fmt.Sprintf("%s declares its own %s; only its references were renamed", path, req.OldName),
				}
			} else {
				occ, err := d.AST.Occurrences(ctx, path, content, req.OldName)
				if err != nil {
					return nil, err
				}
				edits = append(edits, occurrenceEdits(path, occ, refs, req)...)
				if wildcard && !bound && len(occ) > 0 {
					lexicalAt[index[path]] = &plan.Warning{
						Code:    plan.WarnLexicalMatch,
						Message: fmt.Sprintf("%s imports %s with a wildcard; uses were renamed by name", path, req.OldName),
					}
				}
			}
		}
		return &AffectedFile{Path: path, References: relevant, Edits: edits}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, w := range lexicalAt {
		if w != nil {
			lexical = append(lexical, *w)
		}
	}

	acc := newAccumulator()
	acc.addFiles(files...)
	acc.warnings = append(append(acc.warnings, warnings...), lexical...)
	res := acc.result()
	res.Language = def.ID

	recordScan(ctx, "rename", time.Since(start), len(sources), len(res.Edits()), len(warnings))
	span.SetAttributes(attribute.Int("refs.affected", len(res.Affected)))
	return res, nil
}

// occurrenceEdits renames occurrences that fall outside every reference
// statement in refs.
func occurrenceEdits(path string, occ []plan.Range, refs []lang.Reference, req SymbolRequest) []plan.TextEdit {
	var edits []plan.TextEdit
outer:
	for _, r := range occ {
		for _, ref := range refs {
			if ref.StatementRange.Contains(r.Start) && ref.StatementRange.Contains(r.End) {
				continue outer
			}
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       r,
			NewText:     req.NewName,
			Description: fmt.Sprintf("rename %s to %s", req.OldName, req.NewName),
		})
	}
	return edits
}

// refersTo reports whether ref resolves to target, or to target's
// directory when the target's language is directory-scoped.
func (u *Updater) refersTo(ctx context.Context, root, importer string, ref lang.Reference, target string, dirScoped bool) bool {
	d, ok := u.registry.LookupByPath(importer)
	if !ok || d.References == nil {
		return false
	}
	for _, p := range d.References.Resolve(ctx, root, importer, ref) {
		p = filepath.Clean(p)
		if p == target || (dirScoped && p == filepath.Dir(target)) {
			return true
		}
	}
	return false
}

// declares reports whether content declares a top-level symbol name.
func (u *Updater) declares(ctx context.Context, d *lang.Descriptor, path string, content []byte, name string) bool {
	syms, err := d.AST.Symbols(ctx, path, content)
	if err != nil {
		return false
	}
	for _, s := range syms {
		if s.Name == name && s.Parent == "" {
			return true
		}
	}
	return false
}

// Importers returns every reference in the workspace that resolves to
// target or, for a directory target, to anything inside it. Files inside a
// directory target are not reported.
func (u *Updater) Importers(ctx context.Context, root, target string, opts Options) ([]Importer, []plan.Warning, error) {
	ctx, span := startSpan(ctx, "Updater.Importers", attribute.String("refs.target", target))
	defer span.End()
	start := time.Now()

	root, target = filepath.Clean(root), filepath.Clean(target)
	base, err := opts.Scope.base(root)
	if err != nil {
		return nil, nil, err
	}
	inv, err := u.walk(ctx, root, base, opts.Exclude)
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", base, err)
	}

	index := make([][]lang.Reference, len(inv.sources))
	pos := make(map[string]int, len(inv.sources))
	for i, p := range inv.sources {
		pos[p] = i
	}
	_, warnings, err := u.scan(ctx, inv.sources, func(ctx context.Context, d *lang.Descriptor, path string, content []byte) (*AffectedFile, error) {
		if within(path, target) {
			return nil, nil
		}
		refs, err := d.References.ParseReferences(ctx, path, content)
		if err != nil {
			return nil, err
		}
		var hits []lang.Reference
		for _, ref := range refs {
			for _, p := range d.References.Resolve(ctx, root, path, ref) {
				if within(filepath.Clean(p), target) {
					hits = append(hits, ref)
					break
				}
			}
		}
		index[pos[path]] = hits
		return nil, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	var out []Importer
	files := 0
	for i, hits := range index {
		for _, ref := range hits {
			out = append(out, Importer{Path: inv.sources[i], Reference: ref})
		}
		if len(hits) > 0 {
			files++
		}
	}
	recordScan(ctx, "importers", time.Since(start), len(inv.sources), 0, len(warnings))
	u.logger.Debug("importer scan complete", "target", target, "files", files, "references", len(out))
	return out, warnings, nil
}

func languagesWith(r *lang.Registry, c lang.Capability) string {
	out := ""
	for _, d := range r.Languages() {
		if !d.Has(c) {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += d.ID
	}
	return out
}
