// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lang

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Descriptor is the registry's view of one language.
//
// Capability fields are nil when the plugin does not implement them.
type Descriptor struct {
	ID              string       `json:"id"`
	Extensions      []string     `json:"extensions"`
	ManifestName    string       `json:"manifest_name,omitempty"`
	DirectoryScoped bool         `json:"directory_scoped"`
	Capabilities    []Capability `json:"capabilities"`

	References ReferenceRewriter `json:"-"`
	Manifest   ManifestEditor    `json:"-"`
	Workspace  WorkspaceEditor   `json:"-"`
	AST        ASTOperator       `json:"-"`
	Modules    ModuleDeclarer    `json:"-"`
}

// Has reports whether the descriptor implements c.
func (d *Descriptor) Has(c Capability) bool {
	switch c {
	case CapReferences:
		return d.References != nil
	case CapManifest:
		return d.Manifest != nil
	case CapWorkspace:
		return d.Workspace != nil
	case CapAST:
		return d.AST != nil
	case CapModules:
		return d.Modules != nil
	default:
		return false
	}
}

// Registry maps language identifiers and file extensions to descriptors.
//
// # Description
//
// A Registry is built once from a fixed plugin list and never changes.
// Lookups return (nil, false) for unknown languages; callers treat that as
// "operation unsupported for this file".
//
// # Thread Safety
//
// Safe for concurrent use without locking: there are no writers after
// NewRegistry returns.
type Registry struct {
	ordered    []*Descriptor
	byID       map[string]*Descriptor
	byExt      map[string]*Descriptor
	byManifest map[string][]*Descriptor
}

// NewRegistry builds a registry from plugins.
//
// # Outputs
//
//	*Registry - The immutable registry.
//	error - ErrDuplicateLanguage or ErrDuplicateExtension.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		byID:       make(map[string]*Descriptor),
		byExt:      make(map[string]*Descriptor),
		byManifest: make(map[string][]*Descriptor),
	}

	for _, p := range plugins {
		d := describe(p)
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLanguage, d.ID)
		}
		for _, ext := range d.Extensions {
			if other, exists := r.byExt[ext]; exists {
				return nil, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateExtension, ext, other.ID, d.ID)
			}
		}
		for _, ext := range d.Extensions {
			r.byExt[ext] = d
		}
		r.byID[d.ID] = d
		if d.ManifestName != "" {
			r.byManifest[d.ManifestName] = append(r.byManifest[d.ManifestName], d)
		}
		if d.Workspace != nil {
			name := d.Workspace.WorkspaceManifestName()
			if name != "" && name != d.ManifestName {
				r.byManifest[name] = append(r.byManifest[name], d)
			}
		}
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// MustRegistry is NewRegistry for compiled-in plugin lists; it panics on
// a misconfigured list.
func MustRegistry(plugins ...Plugin) *Registry {
	r, err := NewRegistry(plugins...)
	if err != nil {
		panic(err)
	}
	return r
}

func describe(p Plugin) *Descriptor {
	exts := make([]string, 0, len(p.Extensions()))
	for _, ext := range p.Extensions() {
		exts = append(exts, normalizeExt(ext))
	}
	d := &Descriptor{
		ID:           p.ID(),
		Extensions:   exts,
		ManifestName: p.ManifestName(),
	}
	if ds, ok := p.(DirectoryScoped); ok {
		d.DirectoryScoped = ds.DirectoryScoped()
	}
	if rr, ok := p.(ReferenceRewriter); ok {
		d.References = rr
		d.Capabilities = append(d.Capabilities, CapReferences)
	}
	if me, ok := p.(ManifestEditor); ok {
		d.Manifest = me
		d.Capabilities = append(d.Capabilities, CapManifest)
	}
	if we, ok := p.(WorkspaceEditor); ok {
		d.Workspace = we
		d.Capabilities = append(d.Capabilities, CapWorkspace)
	}
	if ao, ok := p.(ASTOperator); ok {
		d.AST = ao
		d.Capabilities = append(d.Capabilities, CapAST)
	}
	if md, ok := p.(ModuleDeclarer); ok {
		d.Modules = md
		d.Capabilities = append(d.Capabilities, CapModules)
	}
	return d
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Lookup returns the descriptor for a language identifier.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// LookupByExtension returns the descriptor for a file extension, with or
// without the leading dot.
func (r *Registry) LookupByExtension(ext string) (*Descriptor, bool) {
	d, ok := r.byExt[normalizeExt(ext)]
	return d, ok
}

// LookupByPath returns the descriptor for a file path by extension.
func (r *Registry) LookupByPath(path string) (*Descriptor, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, false
	}
	return r.LookupByExtension(ext)
}

// LookupManifest returns descriptors whose manifest or workspace manifest
// file is named like base(path).
func (r *Registry) LookupManifest(path string) []*Descriptor {
	return r.byManifest[filepath.Base(path)]
}

// Supports reports whether language id implements capability c. Unknown
// languages support nothing.
func (r *Registry) Supports(id string, c Capability) bool {
	d, ok := r.byID[id]
	if !ok {
		return false
	}
	return d.Has(c)
}

// Languages returns all descriptors in registration order.
func (r *Registry) Languages() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ManifestNames returns every manifest and workspace manifest file name
// known to the registry, sorted.
func (r *Registry) ManifestNames() []string {
	names := make([]string, 0, len(r.byManifest))
	for name := range r.byManifest {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSource reports whether path has an extension some plugin recognises.
func (r *Registry) IsSource(path string) bool {
	_, ok := r.LookupByPath(path)
	return ok
}
