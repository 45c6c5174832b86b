// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import "errors"

// Sentinel errors for bundle parsing and extraction. Use errors.Is in callers.
var (
	// ErrMalformedHeader means the bundle preamble is missing a NUL terminator
	// or carries an empty/non-ASCII signature token.
	ErrMalformedHeader = errors.New("malformed bundle header")
	// ErrUnsupportedFormatVersion means the signature or format version selects
	// a container layout this package does not decode.
	ErrUnsupportedFormatVersion = errors.New("unsupported container format version")
	// ErrUnsupportedCodec means a compressed region declares a codec selector
	// this package does not decode.
	ErrUnsupportedCodec = errors.New("unsupported compression codec")
	// ErrDecompressionFailure means compressed data is malformed, truncated,
	// or decoded to a size other than the declared one.
	ErrDecompressionFailure = errors.New("decompression failure")
	// ErrTruncatedBlocksInfo means the blocks-info tables declare more records
	// than the decompressed payload contains.
	ErrTruncatedBlocksInfo = errors.New("truncated blocks info")
	// ErrTruncatedPayload means a storage block or directory node requests more
	// bytes than remain in its source region.
	ErrTruncatedPayload = errors.New("truncated payload")
	// ErrSizeMismatch means a declared size disagrees with the actual data,
	// or the declared payload exceeds the configured parse limit.
	ErrSizeMismatch = errors.New("declared size mismatch")
	// ErrOffsetMismatch means a directory node's stored offset diverges from
	// the sequential reconstruction cursor.
	ErrOffsetMismatch = errors.New("directory node offset mismatch")
	// ErrInvalidExtractPath means a member path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrInvalidIncludePattern means one or more include rules are invalid.
	ErrInvalidIncludePattern = errors.New("invalid include rules")
)
