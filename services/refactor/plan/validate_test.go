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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRenamePlan() *Plan {
	b := NewBuilder(TypeRename, "go")
	b.Add(
		TextEdit{FilePath: "/ws/a.go", Range: rng(0, 5, 0, 8), NewText: "Bar"},
		TextEdit{FilePath: "/ws/b.go", Range: rng(2, 1, 2, 4), NewText: "Bar"},
	)
	return b.Build(map[string]string{
		"/ws/a.go": "sha256:aa",
		"/ws/b.go": "sha256:bb",
	}, "/ws")
}

func TestValidate_Accepts(t *testing.T) {
	require.NoError(t, Validate(validRenamePlan()))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Plan)
	}{
		{"unknown type", func(p *Plan) { p.PlanType = "SomethingPlan" }},
		{"version", func(p *Plan) { p.PlanVersion = 99 }},
		{"kind mismatch", func(p *Plan) { p.Metadata.Kind = KindDelete }},
		{"relative path", func(p *Plan) { p.Edits[0].FilePath = "a.go" }},
		{"missing checksum", func(p *Plan) { delete(p.FileChecksums, "/ws/b.go") }},
		{"unordered range", func(p *Plan) { p.Edits[0].Range = rng(1, 0, 0, 0) }},
		{"disallowed kind", func(p *Plan) {
			p.PlanType = TypeInline
			p.Metadata.Kind = KindInline
			p.Edits[0].Kind = EditDeleteFile
		}},
		{"overlap", func(p *Plan) {
			p.Edits = append(p.Edits, TextEdit{FilePath: "/ws/a.go", Range: rng(0, 6, 0, 7), NewText: "x"})
		}},
		{"insert with range", func(p *Plan) { p.Edits[0].Kind = EditInsert }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validRenamePlan()
			tt.mutate(p)
			err := Validate(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			assert.Equal(t, CodeInvalidRequest, CodeOf(err))
		})
	}
}

func TestValidate_CreatedFileNeedsNoChecksum(t *testing.T) {
	b := NewBuilder(TypeExtract, "go")
	b.Add(TextEdit{FilePath: "/ws/new.go", Kind: EditCreateFile, NewText: "package ws\n"})
	p := b.Build(nil, "/ws")
	require.NoError(t, Validate(p))
}

func TestValidate_MoveNeedsDestination(t *testing.T) {
	b := NewBuilder(TypeMove, "typescript")
	b.Add(TextEdit{FilePath: "/ws/a.ts", Kind: EditMoveFile})
	p := b.Build(map[string]string{"/ws/a.ts": "sha256:00"}, "/ws")
	assert.Error(t, Validate(p))
}

func TestValidate_Nil(t *testing.T) {
	assert.True(t, errors.Is(Validate(nil), ErrInvalidRequest))
}
