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
	"strings"
)

// Sentinel errors for edit arithmetic.
var (
	// ErrPositionOutOfRange indicates a position outside the file content.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrOverlappingEdits indicates two text edits in one file overlap.
	ErrOverlappingEdits = errors.New("overlapping edits")

	// ErrInvalidEdit indicates a malformed edit.
	ErrInvalidEdit = errors.New("invalid edit")
)

// Code is the machine-readable error code carried by every refactoring
// error that crosses a package boundary.
type Code string

const (
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeAmbiguousTarget       Code = "AMBIGUOUS_TARGET"
	CodeUnsupportedCapability Code = "UNSUPPORTED_CAPABILITY"
	CodeStalePlan             Code = "STALE_PLAN"
	CodePartialWriteFailure   Code = "PARTIAL_WRITE_FAILURE"
	CodeValidationTimeout     Code = "VALIDATION_TIMEOUT"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeRollbackFailed        Code = "ROLLBACK_FAILED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInternal              Code = "INTERNAL"
)

// Sentinels matched by errors.Is against an *Error of the same code.
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrAmbiguousTarget       = errors.New("ambiguous target")
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrStalePlan             = errors.New("stale plan")
	ErrPartialWriteFailure   = errors.New("partial write failure")
	ErrValidationTimeout     = errors.New("validation timeout")
	ErrValidationFailed      = errors.New("validation failed")
	ErrRollbackFailed        = errors.New("rollback failed")
	ErrNotFound              = errors.New("not found")
	ErrInternal              = errors.New("internal error")
)

var codeSentinels = map[Code]error{
	CodeInvalidRequest:        ErrInvalidRequest,
	CodeAmbiguousTarget:       ErrAmbiguousTarget,
	CodeUnsupportedCapability: ErrUnsupportedCapability,
	CodeStalePlan:             ErrStalePlan,
	CodePartialWriteFailure:   ErrPartialWriteFailure,
	CodeValidationTimeout:     ErrValidationTimeout,
	CodeValidationFailed:      ErrValidationFailed,
	CodeRollbackFailed:        ErrRollbackFailed,
	CodeNotFound:              ErrNotFound,
	CodeInternal:              ErrInternal,
}

// Error is a refactoring failure with a code, a human message, and an
// optional suggestion for the caller.
//
// Files lists the paths involved: stale files for STALE_PLAN, the files
// left inconsistent for ROLLBACK_FAILED.
type Error struct {
	Code       Code     `json:"code"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Files      []string `json:"files,omitempty"`
	Err        error    `json:"-"`
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Files) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Files, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	if sentinel, ok := codeSentinels[e.Code]; ok && sentinel == target {
		return true
	}
	if other, ok := target.(*Error); ok {
		return other.Code == e.Code
	}
	return false
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// WithSuggestion sets the suggestion and returns e.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithFiles sets the involved files and returns e.
func (e *Error) WithFiles(files ...string) *Error {
	e.Files = append([]string(nil), files...)
	return e
}

// CodeOf extracts the code from any error. Errors that are not *Error map
// to INTERNAL, nil maps to "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

// AsError converts any error into an *Error, preserving an existing one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeOf(err), Message: err.Error()}
}
