// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typescript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

const corePackage = `{
  "name": "@acme/core",
  "version": "1.0.0",
  "dependencies": {
    "lodash": "^4.17.0",
    "@acme/util": "workspace:*",
    "shared": "file:../shared"
  }
}
`

func TestParseManifest(t *testing.T) {
	p := newWorkspace(t, nil)
	m, err := p.ParseManifest(context.Background(), "/ws/core/package.json", []byte(corePackage))
	require.NoError(t, err)

	assert.Equal(t, "@acme/core", m.Name)
	require.Len(t, m.Dependencies, 3)
	assert.Equal(t, "lodash", m.Dependencies[0].Name)
	assert.Equal(t, "dependencies", m.Dependencies[0].Section)
	assert.Equal(t, "../shared", m.Dependencies[2].Path)

	_, err = p.ParseManifest(context.Background(), "/ws/package.json", []byte("[1, 2]"))
	assert.ErrorIs(t, err, lang.ErrNotManifest)
}

func TestUpdatePackageIdentity_PreservesFormatting(t *testing.T) {
	p := newWorkspace(t, nil)
	out, err := p.UpdatePackageIdentity(context.Background(), "/ws/core/package.json", []byte(corePackage), "@acme/kernel")
	require.NoError(t, err)

	want := `{
  "name": "@acme/kernel",
  "version": "1.0.0",
  "dependencies": {
    "lodash": "^4.17.0",
    "@acme/util": "workspace:*",
    "shared": "file:../shared"
  }
}
`
	assert.Equal(t, want, string(out))
}

func TestRewriteDependencyPaths(t *testing.T) {
	p := newWorkspace(t, nil)
	out, err := p.RewriteDependencyPaths(context.Background(), "/ws/core/package.json", []byte(corePackage),
		"/ws/shared", "/ws/libs/shared", "/ws/core/package.json")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"shared": "file:../libs/shared"`)
	assert.Contains(t, string(out), `"lodash": "^4.17.0"`)
}

func TestRenameDependency(t *testing.T) {
	p := newWorkspace(t, nil)
	out, err := p.RenameDependency(context.Background(), "/ws/core/package.json", []byte(corePackage), "@acme/util", "@acme/tools")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"@acme/tools": "workspace:*",`)
	assert.NotContains(t, string(out), "@acme/util")
}

func TestMergeManifests(t *testing.T) {
	p := newWorkspace(t, nil)
	source := lang.Document{Path: "/ws/util/package.json", Content: []byte(`{
  "name": "@acme/util",
  "dependencies": {
    "lodash": "^3.0.0",
    "uuid": "^9.0.0",
    "@acme/core": "workspace:*"
  },
  "devDependencies": {
    "vitest": "^1.0.0"
  }
}
`)}
	target := lang.Document{Path: "/ws/core/package.json", Content: []byte(corePackage)}

	res, err := p.MergeManifests(context.Background(), target, source)
	require.NoError(t, err)

	assert.Equal(t, []string{"uuid", "vitest"}, res.Added)
	assert.Equal(t, []string{"@acme/core", "@acme/util"}, res.Dropped)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "lodash", res.Conflicts[0].Name)
	assert.Equal(t, "^4.17.0", res.Conflicts[0].TargetSpec)
	assert.Equal(t, "^3.0.0", res.Conflicts[0].SourceSpec)

	out := string(res.Content)
	assert.Contains(t, out, `"uuid": "^9.0.0"`)
	assert.Contains(t, out, `"devDependencies": {`)
	assert.Contains(t, out, `"vitest": "^1.0.0"`)
	assert.Contains(t, out, `"lodash": "^4.17.0"`)
	assert.NotContains(t, out, "workspace:*")

	merged, err := p.ParseManifest(context.Background(), target.Path, res.Content)
	require.NoError(t, err)
	assert.Len(t, merged.Dependencies, 4)
}

const rootPackage = `{
  "name": "root",
  "private": true,
  "workspaces": [
    "packages/a",
    "packages/b"
  ]
}
`

func TestWorkspaceMembers(t *testing.T) {
	p := newWorkspace(t, nil)
	ctx := context.Background()

	assert.True(t, p.IsWorkspace(ctx, "/ws/package.json", []byte(rootPackage)))
	assert.False(t, p.IsWorkspace(ctx, "/ws/core/package.json", []byte(corePackage)))

	members, err := p.ListMembers(ctx, "/ws/package.json", []byte(rootPackage))
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/a", "packages/b"}, members)

	out, err := p.AddMember(ctx, "/ws/package.json", []byte(rootPackage), "packages/c")
	require.NoError(t, err)
	assert.Contains(t, string(out), "\"packages/b\",\n    \"packages/c\"\n  ]")

	out, err = p.RemoveMember(ctx, "/ws/package.json", []byte(rootPackage), "./packages/a")
	require.NoError(t, err)
	assert.Equal(t, `{
  "name": "root",
  "private": true,
  "workspaces": [
    "packages/b"
  ]
}
`, string(out))
}

func TestWorkspaceMembers_ObjectForm(t *testing.T) {
	p := newWorkspace(t, nil)
	content := []byte(`{"workspaces": {"packages": ["apps/*"]}}`)

	members, err := p.ListMembers(context.Background(), "/ws/package.json", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/*"}, members)
}
