// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checksum

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDigest_Format(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/ws/a.txt", "hello")

	for _, algo := range []Algorithm{SHA256, BLAKE3} {
		t.Run(string(algo), func(t *testing.T) {
			s := New(fs, WithAlgorithm(algo))
			d, err := s.Digest(context.Background(), "/ws/a.txt")
			if err != nil {
				t.Fatalf("Digest: %v", err)
			}
			if !strings.HasPrefix(d, string(algo)+":") {
				t.Errorf("digest %q lacks %s prefix", d, algo)
			}
			ok, err := Matches([]byte("hello"), d)
			if err != nil || !ok {
				t.Errorf("Matches = %v, %v; want true, nil", ok, err)
			}
			ok, _ = Matches([]byte("hello!"), d)
			if ok {
				t.Error("Matches on different content = true")
			}
		})
	}
}

func TestDigest_KnownSHA256(t *testing.T) {
	s := New(afero.NewMemMapFs())
	got := s.DigestBytes([]byte("test"))
	want := "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got != want {
		t.Errorf("DigestBytes = %s, want %s", got, want)
	}
}

func TestDigest_TooLarge(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/ws/big.txt", strings.Repeat("x", 200))

	s := New(fs, WithMaxFileSize(100))
	_, err := s.Digest(context.Background(), "/ws/big.txt")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}

func TestDigest_Directory(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/ws/dir", 0755); err != nil {
		t.Fatal(err)
	}
	_, err := New(fs).Digest(context.Background(), "/ws/dir")
	if !errors.Is(err, ErrNotRegularFile) {
		t.Errorf("error = %v, want ErrNotRegularFile", err)
	}
}

func TestCaptureAndVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/ws/a.go", "package a\n")
	writeFile(t, fs, "/ws/b.go", "package b\n")
	writeFile(t, fs, "/ws/c.go", "package c\n")

	s := New(fs)
	ctx := context.Background()
	sums, err := s.Capture(ctx, []string{"/ws/a.go", "/ws/./b.go", "/ws/c.go"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("len(sums) = %d, want 3", len(sums))
	}
	if _, ok := sums["/ws/b.go"]; !ok {
		t.Error("paths must be cleaned")
	}

	mismatches, err := s.Verify(ctx, sums)
	if err != nil || len(mismatches) != 0 {
		t.Fatalf("Verify unchanged = %v, %v", mismatches, err)
	}

	writeFile(t, fs, "/ws/b.go", "package b // edited\n")
	if err := fs.Remove("/ws/c.go"); err != nil {
		t.Fatal(err)
	}

	mismatches, err = s.Verify(ctx, sums)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(mismatches) != 2 {
		t.Fatalf("len(mismatches) = %d, want 2", len(mismatches))
	}
	if mismatches[0].Path != "/ws/b.go" || mismatches[0].Missing {
		t.Errorf("mismatches[0] = %+v", mismatches[0])
	}
	if mismatches[1].Path != "/ws/c.go" || !mismatches[1].Missing {
		t.Errorf("mismatches[1] = %+v", mismatches[1])
	}
}

func TestCapture_MissingFileFails(t *testing.T) {
	_, err := New(afero.NewMemMapFs()).Capture(context.Background(), []string{"/nope.go"})
	if err == nil {
		t.Fatal("Capture of missing file = nil error")
	}
}

func TestVerify_HonorsRecordedAlgorithm(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/ws/a.rs", "fn main() {}\n")

	blake := New(fs, WithAlgorithm(BLAKE3))
	sums, err := blake.Capture(context.Background(), []string{"/ws/a.rs"})
	if err != nil {
		t.Fatal(err)
	}

	mismatches, err := New(fs, WithAlgorithm(SHA256)).Verify(context.Background(), sums)
	if err != nil || len(mismatches) != 0 {
		t.Errorf("Verify = %v, %v; want no mismatches", mismatches, err)
	}
}

func TestParseDigest(t *testing.T) {
	hex64 := strings.Repeat("ab", 32)
	tests := []struct {
		in      string
		algo    Algorithm
		wantErr error
	}{
		{"sha256:" + hex64, SHA256, nil},
		{"blake3:" + hex64, BLAKE3, nil},
		{hex64, SHA256, nil},
		{"md5:" + hex64, "", ErrUnknownAlgorithm},
		{"sha256:abc", "", ErrInvalidDigest},
		{"sha256:" + strings.ToUpper(hex64), "", ErrInvalidDigest},
	}
	for _, tt := range tests {
		algo, _, err := ParseDigest(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseDigest(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || algo != tt.algo {
			t.Errorf("ParseDigest(%q) = %s, %v", tt.in, algo, err)
		}
	}
}

func TestDigest_OsFs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.py")
	if err := os.WriteFile(path, []byte("print(1)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s := New(afero.NewOsFs())
	d, err := s.Digest(context.Background(), path)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d != s.DigestBytes([]byte("print(1)\n")) {
		t.Errorf("Digest mismatch: %s", d)
	}
}
