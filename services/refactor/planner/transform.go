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
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Transform plans a mechanical transformation of one symbol. The edits
// come from the symbol's language plugin; transformations a language has
// no syntax for fail with UNSUPPORTED_CAPABILITY. Removing an export warns
// about every importer that still binds the symbol.
func (p *Planner) Transform(ctx context.Context, req TransformRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeTransform, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		t, cands, err := p.resolveSymbol(ctx, j, req.Target)
		if err != nil {
			return err
		}
		if t == nil {
			ambiguous(j.builder, req.Target.Name, cands)
			return nil
		}
		j.builder.SetLanguage(t.d.ID)

		edits, err := t.d.AST.Transform(ctx, t.path, t.content, t.sym, req.Transform)
		switch {
		case errors.Is(err, lang.ErrUnsupportedTransform):
			return plan.Wrap(plan.CodeUnsupportedCapability, err,
				fmt.Sprintf("%s does not support %s", t.d.ID, req.Transform)).
				WithSuggestion("pick a transformation the language can express")
		case errors.Is(err, lang.ErrNoDeclaration):
			return plan.Wrap(plan.CodeNotFound, err, t.sym.Name+" could not be located in "+t.path)
		case err != nil:
			return parseFailure(t.path, err)
		}
		j.builder.Add(edits...)

		if req.Transform == lang.TransformRemoveExport && len(edits) > 0 && !t.d.DirectoryScoped {
			importers, warnings, err := p.updater.Importers(ctx, j.root, t.path, refOptions(req.Workspace, true))
			if err != nil {
				return err
			}
			j.builder.Warn(warnings...)
			for _, imp := range importers {
				for _, b := range imp.Reference.Bindings {
					if b.Name == t.sym.Name {
						j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
							"%s imports %s, which is no longer exported", imp.Path, t.sym.Name))
					}
				}
			}
		}
		return nil
	})
}
