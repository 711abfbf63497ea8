// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checksum computes content digests for plan-time capture and
// apply-time verification.
//
// Digests are rendered as "<algorithm>:<lowercase hex>", for example
// "sha256:9f86d0...". Verification always uses the algorithm named in the
// recorded digest, so plans captured with one algorithm stay verifiable
// after the service default changes.
//
// # Thread Safety
//
// Service is safe for concurrent use.
package checksum

import "errors"

var (
	// ErrFileTooLarge is returned when a file exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file too large to hash")

	// ErrFileUnstable is returned when a file keeps changing while it is
	// being hashed, after all retries are spent.
	ErrFileUnstable = errors.New("file changed during hashing")

	// ErrInvalidDigest is returned for a digest string that does not parse.
	ErrInvalidDigest = errors.New("invalid digest format")

	// ErrUnknownAlgorithm is returned for an algorithm name that is not
	// supported.
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

	// ErrNotRegularFile is returned when a path names a directory or device.
	ErrNotRegularFile = errors.New("not a regular file")
)
