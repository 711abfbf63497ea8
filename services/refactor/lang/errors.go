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
	"errors"
	"fmt"
)

var (
	// ErrParse indicates source text that could not be parsed cleanly.
	ErrParse = errors.New("parse error")

	// ErrDuplicateLanguage is returned when two plugins share an ID.
	ErrDuplicateLanguage = errors.New("duplicate language id")

	// ErrDuplicateExtension is returned when two plugins claim an extension.
	ErrDuplicateExtension = errors.New("extension claimed by two languages")

	// ErrUnsupportedTransform is returned by ASTOperator.Transform for
	// transformations the language has no syntax for.
	ErrUnsupportedTransform = errors.New("transform not supported for this language")

	// ErrNoDeclaration is returned when no declaration matches a request.
	ErrNoDeclaration = errors.New("no declaration found")

	// ErrNotLocal is returned when an inline target is not a local
	// single-assignment declaration.
	ErrNotLocal = errors.New("not a local declaration")

	// ErrNotManifest is returned when a document is not a valid manifest.
	ErrNotManifest = errors.New("not a valid manifest")
)

// ParseError describes a syntax error in a file.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

// Error implements error.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns ErrParse for errors.Is checks.
func (e *ParseError) Unwrap() error {
	return ErrParse
}
