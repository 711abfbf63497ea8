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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

const (
	// DefaultMaxFileSize is the largest file hashed by default (50MB).
	DefaultMaxFileSize int64 = 50 * 1024 * 1024

	// DefaultRetries is how many times a changing file is re-hashed.
	DefaultRetries = 3

	// DefaultConcurrency bounds parallel hashing in Capture and Verify.
	DefaultConcurrency = 8
)

// ParseAlgorithm validates an algorithm name. Empty means SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Sum returns the hex digest of data under algo.
func (a Algorithm) Sum(data []byte) (string, error) {
	switch a {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case BLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// ParseDigest splits "<algo>:<hex>". A bare 64-character hex string is
// accepted as sha256.
func ParseDigest(digest string) (Algorithm, string, error) {
	algo, sum, found := strings.Cut(digest, ":")
	if !found {
		algo, sum = string(SHA256), digest
	}
	a, err := ParseAlgorithm(algo)
	if err != nil {
		return "", "", err
	}
	if len(sum) != 64 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDigest, digest)
	}
	if _, err := hex.DecodeString(sum); err != nil || strings.ToLower(sum) != sum {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDigest, digest)
	}
	return a, sum, nil
}

// Mismatch describes one file whose content no longer matches its digest.
type Mismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Missing  bool   `json:"missing,omitempty"`
}

// Service computes and verifies file digests.
type Service struct {
	fs          afero.Fs
	algorithm   Algorithm
	maxFileSize int64
	retries     int
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithAlgorithm sets the algorithm used for new digests.
func WithAlgorithm(a Algorithm) Option {
	return func(s *Service) {
		if a != "" {
			s.algorithm = a
		}
	}
}

// WithMaxFileSize sets the size limit. Zero disables the limit; negative
// values select DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n < 0 {
			n = DefaultMaxFileSize
		}
		s.maxFileSize = n
	}
}

// WithConcurrency bounds parallel hashing.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetries sets how often an unstable file is re-read.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

// New creates a checksum service over fs.
func New(fs afero.Fs, opts ...Option) *Service {
	s := &Service{
		fs:          fs,
		algorithm:   SHA256,
		maxFileSize: DefaultMaxFileSize,
		retries:     DefaultRetries,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Algorithm returns the algorithm used for new digests.
func (s *Service) Algorithm() Algorithm {
	return s.algorithm
}

// DigestBytes renders the digest of data with the service algorithm.
func (s *Service) DigestBytes(data []byte) string {
	sum, _ := s.algorithm.Sum(data)
	return string(s.algorithm) + ":" + sum
}

// Matches reports whether data hashes to digest under the digest's own
// algorithm.
func Matches(data []byte, digest string) (bool, error) {
	algo, want, err := ParseDigest(digest)
	if err != nil {
		return false, err
	}
	got, err := algo.Sum(data)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// Digest reads path and returns its digest.
//
// # Description
//
// The file is stat'ed before and after reading; if size or modification
// time changed in between, the read is retried. This guards against
// capturing a digest of a half-written file.
//
// # Outputs
//
//	string - "<algo>:<hex>".
//	error - ErrFileTooLarge, ErrFileUnstable, ErrNotRegularFile, or an I/O error.
func (s *Service) Digest(ctx context.Context, path string) (string, error) {
	data, err := s.ReadStable(ctx, path)
	if err != nil {
		return "", err
	}
	return s.DigestBytes(data), nil
}

// ReadStable reads a file whose size and mtime do not change during the
// read.
func (s *Service) ReadStable(ctx context.Context, path string) ([]byte, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before, err := s.fs.Stat(path)
		if err != nil {
			return nil, err
		}
		if !before.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
		}
		if s.maxFileSize > 0 && before.Size() > s.maxFileSize {
			return nil, fmt.Errorf("%w: %s (%d bytes, limit %d)", ErrFileTooLarge, path, before.Size(), s.maxFileSize)
		}

		data, err := s.read(path)
		if err != nil {
			return nil, err
		}

		after, err := s.fs.Stat(path)
		if err != nil {
			return nil, err
		}
		if after.Size() == before.Size() && after.ModTime().Equal(before.ModTime()) && int64(len(data)) == after.Size() {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileUnstable, path)
}

func (s *Service) read(path string) ([]byte, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxFileSize > 0 {
		r = io.LimitReader(f, s.maxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	return data, nil
}

// Capture digests every path in parallel.
//
// # Outputs
//
//	map[string]string - Cleaned path to digest.
//	error - The first failure; no partial map is returned.
func (s *Service) Capture(ctx context.Context, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range paths {
		path := filepath.Clean(p)
		g.Go(func() error {
			digest, err := s.Digest(gctx, path)
			if err != nil {
				return fmt.Errorf("capture %s: %w", path, err)
			}
			mu.Lock()
			out[path] = digest
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify recomputes each recorded digest and reports mismatches.
//
// A file that no longer exists is a mismatch with Missing set. Mismatches
// are sorted by path. The error return is reserved for failures that make
// verification itself impossible, such as a malformed recorded digest.
func (s *Service) Verify(ctx context.Context, checksums map[string]string) ([]Mismatch, error) {
	var (
		mu         sync.Mutex
		mismatches []Mismatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for p, d := range checksums {
		path, digest := p, d
		g.Go(func() error {
			algo, want, err := ParseDigest(digest)
			if err != nil {
				return fmt.Errorf("verify %s: %w", path, err)
			}
			data, err := s.ReadStable(gctx, path)
			if err != nil {
				exists, statErr := afero.Exists(s.fs, path)
				if statErr == nil && !exists {
					mu.Lock()
					mismatches = append(mismatches, Mismatch{Path: path, Expected: digest, Missing: true})
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("verify %s: %w", path, err)
			}
			got, err := algo.Sum(data)
			if err != nil {
				return err
			}
			if got != want {
				mu.Lock()
				mismatches = append(mismatches, Mismatch{
					Path:     path,
					Expected: digest,
					Actual:   string(algo) + ":" + got,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Path < mismatches[j].Path })
	return mismatches, nil
}
