// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Raw LZMA region layout: 5 properties bytes, then the stream with no
// embedded size. The classic container header the lzma reader expects adds
// an 8-byte little-endian uncompressed size after the properties.
const (
	lzmaPropsSize  = 5
	lzmaHeaderSize = lzmaPropsSize + 8
)

// decompress is a pure transform of one compressed region. For
// CompressionNone the declared size is advisory and the input is returned
// unchanged. Unknown selectors fall back to passthrough unless strict is set.
func decompress(data []byte, uncompressedSize uint32, codec Compression, strict bool) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return data, nil

	case CompressionLZMA:
		return decompressLZMA(data, uncompressedSize)

	case CompressionLZ4, CompressionLZ4HC:
		return decompressLZ4(data, uncompressedSize)

	default:
		if strict {
			return nil, fmt.Errorf("%w: selector %d", ErrUnsupportedCodec, codec)
		}

		return data, nil
	}
}

// decompressLZ4 decodes one LZ4 block to exactly uncompressedSize bytes.
func decompressLZ4(data []byte, uncompressedSize uint32) ([]byte, error) {
	out := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrDecompressionFailure, err)
	}

	if n != int(uncompressedSize) {
		return nil, fmt.Errorf("%w: lz4 decoded %d bytes, want %d", ErrDecompressionFailure, n, uncompressedSize)
	}

	return out, nil
}

// decompressLZMA decodes a raw LZMA region to exactly uncompressedSize bytes.
// The 13-byte classic header is synthesized from the stored properties and
// the declared size before handing the stream to the lzma reader.
func decompressLZMA(data []byte, uncompressedSize uint32) ([]byte, error) {
	if len(data) < lzmaPropsSize {
		return nil, fmt.Errorf("%w: lzma region shorter than properties", ErrDecompressionFailure)
	}

	header := make([]byte, lzmaHeaderSize)
	copy(header, data[:lzmaPropsSize])
	binary.LittleEndian.PutUint64(header[lzmaPropsSize:], uint64(uncompressedSize))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(data[lzmaPropsSize:])))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma: %w", ErrDecompressionFailure, err)
	}

	out := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: lzma: %w", ErrDecompressionFailure, err)
	}

	return out, nil
}
