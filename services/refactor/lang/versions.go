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
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompatibleVersions reports whether two dependency requirements can be
// merged without a conflict.
//
// Identical strings are compatible. Otherwise both must parse as semver
// constraints and each must admit the other's base version, so "1.2" and
// "1.2.0" agree while "^1.2.0" and "^1.3.0" do not. Anything unparseable
// (git URLs, paths, tags) is compatible only with itself.
func CompatibleVersions(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	ca, err := semver.NewConstraint(a)
	if err != nil {
		return false
	}
	cb, err := semver.NewConstraint(b)
	if err != nil {
		return false
	}
	va, err := baseVersion(a)
	if err != nil {
		return false
	}
	vb, err := baseVersion(b)
	if err != nil {
		return false
	}
	return ca.Check(vb) && cb.Check(va)
}

func baseVersion(req string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimLeft(req, "^~=<>v "))
}
