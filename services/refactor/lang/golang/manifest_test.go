// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package golang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

const appMod = `module example.com/app

go 1.22

require (
	example.com/lib v0.0.0
	github.com/google/uuid v1.6.0
)

replace example.com/lib => ../lib
`

func TestParseManifest(t *testing.T) {
	_, p := newWorkspace(t, nil)
	m, err := p.ParseManifest(context.Background(), "/ws/app/go.mod", []byte(appMod))
	require.NoError(t, err)

	assert.Equal(t, "example.com/app", m.Name)
	require.Len(t, m.Dependencies, 2)
	assert.Equal(t, "example.com/lib", m.Dependencies[0].Name)
	assert.Equal(t, "../lib", m.Dependencies[0].Path)
	assert.Empty(t, m.Dependencies[1].Path)
}

func TestParseManifest_Invalid(t *testing.T) {
	_, p := newWorkspace(t, nil)
	_, err := p.ParseManifest(context.Background(), "/ws/go.mod", []byte("module\n\nrequire (\n"))
	assert.ErrorIs(t, err, lang.ErrNotManifest)
}

func TestRewriteDependencyPaths(t *testing.T) {
	_, p := newWorkspace(t, nil)
	ctx := context.Background()

	out, err := p.RewriteDependencyPaths(ctx, "/ws/app/go.mod", []byte(appMod), "/ws/lib", "/ws/libs/lib", "/ws/app/go.mod")
	require.NoError(t, err)
	assert.Contains(t, string(out), "=> ../libs/lib")

	// The manifest itself moving one level deeper.
	out, err = p.RewriteDependencyPaths(ctx, "/ws/app/go.mod", []byte(appMod), "/ws/other", "/ws/elsewhere", "/ws/svc/app/go.mod")
	require.NoError(t, err)
	assert.Contains(t, string(out), "=> ../../lib")

	// Unaffected paths leave the content untouched.
	out, err = p.RewriteDependencyPaths(ctx, "/ws/app/go.mod", []byte(appMod), "/ws/other", "/ws/elsewhere", "/ws/app/go.mod")
	require.NoError(t, err)
	assert.Equal(t, appMod, string(out))
}

func TestRenameDependencyAndIdentity(t *testing.T) {
	_, p := newWorkspace(t, nil)
	ctx := context.Background()

	out, err := p.RenameDependency(ctx, "/ws/app/go.mod", []byte(appMod), "example.com/lib", "example.com/core")
	require.NoError(t, err)
	assert.Contains(t, string(out), "example.com/core v0.0.0")
	assert.Contains(t, string(out), "example.com/core => ../lib")
	assert.NotContains(t, string(out), "example.com/lib")

	out, err = p.UpdatePackageIdentity(ctx, "/ws/app/go.mod", []byte(appMod), "example.com/service")
	require.NoError(t, err)
	assert.Contains(t, string(out), "module example.com/service")
}

func TestMergeManifests(t *testing.T) {
	_, p := newWorkspace(t, nil)
	target := lang.Document{Path: "/ws/core/go.mod", Content: []byte(`module example.com/core

go 1.22

require (
	example.com/util v0.0.0
	github.com/google/uuid v1.6.0
)
`)}
	source := lang.Document{Path: "/ws/util/go.mod", Content: []byte(`module example.com/util

go 1.22

require (
	github.com/google/uuid v1.5.0
	golang.org/x/sync v0.19.0
)
`)}

	res, err := p.MergeManifests(context.Background(), target, source)
	require.NoError(t, err)

	assert.Equal(t, []string{"golang.org/x/sync"}, res.Added)
	assert.Equal(t, []string{"example.com/util"}, res.Dropped)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, lang.DependencyConflict{
		Name:       "github.com/google/uuid",
		TargetSpec: "v1.6.0",
		SourceSpec: "v1.5.0",
	}, res.Conflicts[0])

	out := string(res.Content)
	assert.Contains(t, out, "golang.org/x/sync v0.19.0")
	assert.Contains(t, out, "github.com/google/uuid v1.6.0")
	assert.NotContains(t, out, "example.com/util v0.0.0")
}

func TestWorkspaceMembers(t *testing.T) {
	_, p := newWorkspace(t, nil)
	ctx := context.Background()
	work := []byte("go 1.22\n\nuse (\n\t./a\n\t./b\n)\n")

	assert.True(t, p.IsWorkspace(ctx, "/ws/go.work", work))
	assert.False(t, p.IsWorkspace(ctx, "/ws/go.mod", work))

	members, err := p.ListMembers(ctx, "/ws/go.work", work)
	require.NoError(t, err)
	assert.Equal(t, []string{"./a", "./b"}, members)

	out, err := p.AddMember(ctx, "/ws/go.work", work, "c")
	require.NoError(t, err)
	assert.Contains(t, string(out), "./c")

	same, err := p.AddMember(ctx, "/ws/go.work", work, "./a")
	require.NoError(t, err)
	assert.Equal(t, work, same)

	out, err = p.RemoveMember(ctx, "/ws/go.work", work, "a")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "./a")
	assert.Contains(t, string(out), "./b")
}
