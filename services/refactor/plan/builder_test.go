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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SummaryAndMetadata(t *testing.T) {
	b := NewBuilder(TypeMove, "typescript")
	b.Add(
		TextEdit{FilePath: "/ws/src/b.ts", Range: rng(0, 0, 0, 3), NewText: "x"},
		TextEdit{FilePath: "/ws/src/a.ts", Kind: EditMoveFile, NewPath: "/ws/src/utils/a.ts"},
		TextEdit{FilePath: "/ws/src/index.ts", Kind: EditCreateFile, NewText: "export {}\n"},
		TextEdit{FilePath: "/ws/src/old.ts", Kind: EditDeleteFile},
	)
	b.Warnf(WarnLexicalMatch, "test")

	paths := b.ChecksumPaths()
	assert.Equal(t, []string{"/ws/src/a.ts", "/ws/src/b.ts", "/ws/src/old.ts"}, paths)

	p := b.Build(map[string]string{}, "/ws")
	assert.Equal(t, TypeMove, p.PlanType)
	assert.Equal(t, Version, p.PlanVersion)
	assert.Equal(t, KindMove, p.Metadata.Kind)
	assert.Equal(t, "typescript", p.Metadata.Language)
	assert.Equal(t, Summary{AffectedFiles: 2, CreatedFiles: 1, DeletedFiles: 1}, p.Summary)
	assert.Equal(t, ImpactMedium, p.Metadata.EstimatedImpact)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.Metadata.CreatedAt.IsZero())
	assert.True(t, p.HasWarning(WarnLexicalMatch))
	assert.Equal(t, "/ws/src/a.ts", p.Edits[0].FilePath)
}

func TestBuilder_EmptyPlanHasNonNilSlices(t *testing.T) {
	p := NewBuilder(TypeDelete, "go").Build(nil, "/ws")
	assert.NotNil(t, p.Edits)
	assert.NotNil(t, p.Warnings)
	assert.NotNil(t, p.FileChecksums)
	assert.Equal(t, ImpactLow, p.Metadata.EstimatedImpact)
}

func TestPlan_CloneIsDeep(t *testing.T) {
	p := validRenamePlan()
	p.Warnings = []Warning{{Code: "x", Candidates: []Candidate{{Path: "/a"}}}}
	c := p.Clone()
	c.Edits[0].NewText = "changed"
	c.FileChecksums["/ws/a.go"] = "changed"
	c.Warnings[0].Candidates[0].Path = "/b"
	assert.Equal(t, "Bar", p.Edits[0].NewText)
	assert.Equal(t, "sha256:aa", p.FileChecksums["/ws/a.go"])
	assert.Equal(t, "/a", p.Warnings[0].Candidates[0].Path)
}

func TestEstimateImpact(t *testing.T) {
	assert.Equal(t, ImpactLow, EstimateImpact(0))
	assert.Equal(t, ImpactLow, EstimateImpact(3))
	assert.Equal(t, ImpactMedium, EstimateImpact(4))
	assert.Equal(t, ImpactMedium, EstimateImpact(10))
	assert.Equal(t, ImpactHigh, EstimateImpact(11))
}

func TestError_IsAndCode(t *testing.T) {
	err := Errorf(CodeStalePlan, "changed").WithFiles("/ws/a.go").WithSuggestion("regenerate")
	wrapped := fmt.Errorf("apply: %w", err)

	assert.True(t, errors.Is(wrapped, ErrStalePlan))
	assert.False(t, errors.Is(wrapped, ErrInvalidRequest))
	assert.Equal(t, CodeStalePlan, CodeOf(wrapped))
	assert.Contains(t, err.Error(), "/ws/a.go")

	pe := AsError(wrapped)
	require.NotNil(t, pe)
	assert.Equal(t, "regenerate", pe.Suggestion)

	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInvalidRequest, CodeOf(fmt.Errorf("x: %w", ErrInvalidRequest)))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestTypeKindMapping(t *testing.T) {
	for _, pt := range []Type{TypeRename, TypeExtract, TypeInline, TypeMove, TypeReorder, TypeTransform, TypeDelete} {
		k, ok := pt.Kind()
		require.True(t, ok)
		back, ok := TypeForKind(k)
		require.True(t, ok)
		assert.Equal(t, pt, back)
	}
	assert.False(t, Type("Nope").Valid())
}
