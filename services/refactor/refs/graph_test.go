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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_IgnoresSelfLoopsAndDuplicates(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "a")

	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Edges(), 1)
	assert.True(t, g.Has("b"))
	assert.False(t, g.Has("c"))
}

func TestGraph_Cycles(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")
	g.AddEdge("c", "d")

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycles[0])
	assert.Equal(t, "a -> b -> c -> a", FormatCycle(cycles[0]))
	assert.Len(t, g.CyclesThrough("b"), 1)
	assert.Empty(t, g.CyclesThrough("d"))
}

func TestGraph_TopoOrder(t *testing.T) {
	g := NewGraph()
	g.AddEdge("c", "d")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b", "d"}, order)

	g.AddEdge("d", "a")
	_, err = g.TopoOrder()
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "->")
}

func TestGraph_ContractCreatesCycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge("app", "util")
	g.AddEdge("core", "app")
	g.AddEdge("util", "core")
	assert.Len(t, g.Cycles(), 1)

	g = NewGraph()
	g.AddEdge("app", "util")
	g.AddEdge("core", "app")
	assert.Empty(t, g.Cycles())

	g.Contract("util", "core")
	assert.Equal(t, [][]string{{"app", "core", "app"}}, g.Cycles())
	assert.Len(t, g.Edges(), 2)
}
