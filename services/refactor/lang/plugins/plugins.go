// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plugins assembles the compiled-in language plugins into a
// registry.
package plugins

import (
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/golang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/python"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/rust"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/typescript"
)

// All returns every built-in plugin reading through fs.
func All(fs afero.Fs) []lang.Plugin {
	return []lang.Plugin{
		golang.New(fs),
		typescript.New(fs),
		python.New(fs),
		rust.New(fs),
	}
}

// New builds a registry of the built-in plugins over fs.
func New(fs afero.Fs) (*lang.Registry, error) {
	return lang.NewRegistry(All(fs)...)
}

// Default is New over the OS filesystem.
func Default() *lang.Registry {
	return lang.MustRegistry(All(afero.NewOsFs())...)
}
