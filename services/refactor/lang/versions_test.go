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

import "testing"

func TestCompatibleVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.2.3", "1.2.3", true},
		{"^1.2.0", "^1.2.0", true},
		{"^1.2.0", "^1.3.0", false},
		{"1.0.0", "2.0.0", false},
		{"git+https://example.com/x.git", "git+https://example.com/x.git", true},
		{"git+https://example.com/x.git", "^1.0.0", false},
		{"workspace:*", "^1.0.0", false},
	}
	for _, tt := range tests {
		if got := CompatibleVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompatibleVersions(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
