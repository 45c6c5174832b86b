// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"bytes"
	"encoding/binary"
)

// DetectFileType classifies a buffer's container kind. Classification is
// total over arbitrary bytes and read-only: it never fails, never mutates the
// input, and shares no cursor state with Parse.
func DetectFileType(buf []byte) FileType {
	if sig, ok := sniffSignature(buf); ok {
		switch sig {
		case SignatureUnityFS, SignatureUnityWeb, SignatureUnityRaw, SignatureUnityArchive:
			return FileTypeBundle
		case SignatureWebData:
			return FileTypeWebData
		}
	}

	if probeSerializedAssets(buf) {
		return FileTypeSerializedAssets
	}

	return FileTypeResource
}

// sniffSignature reads a bounded printable-ASCII run terminated by NUL from
// offset 0. It is more permissive than the strict header parser so that
// signatures with digits and dots (web-data) still classify.
func sniffSignature(buf []byte) (string, bool) {
	limit := len(buf)
	if limit > maxSignatureLen {
		limit = maxSignatureLen
	}

	idx := bytes.IndexByte(buf[:limit], 0)
	if idx <= 0 {
		return "", false
	}

	for _, b := range buf[:idx] {
		if b < 0x20 || b > 0x7e {
			return "", false
		}
	}

	return string(buf[:idx]), true
}

// probeSerializedAssets checks whether buf starts with a self-describing
// serialized-assets header. The probe operates on an independent read cursor
// over the whole buffer and succeeds only when the declared file size matches
// the actual buffer length and the data offset stays within it.
func probeSerializedAssets(buf []byte) bool {
	if len(buf) < probeMinSize {
		return false
	}

	// Legacy header: metadataSize u32 (ignored), fileSize u32, version u32,
	// dataOffset u32, endianness u8, 3 reserved bytes.
	fileSize := binary.BigEndian.Uint32(buf[4:8])
	version := binary.BigEndian.Uint32(buf[8:12])
	dataOffset := binary.BigEndian.Uint32(buf[12:16])

	if version >= 22 {
		if len(buf) < probeMinSizeV22 {
			return false
		}

		// Wide header follows the first 20 bytes: metadataSize u32 (ignored),
		// fileSize u64, dataOffset u64. Values are truncated to 32 bits for
		// comparison, matching the legacy field widths.
		fileSize = uint32(binary.BigEndian.Uint64(buf[24:32]))
		dataOffset = uint32(binary.BigEndian.Uint64(buf[32:40]))
	}

	actualSize := uint32(len(buf))
	if fileSize != actualSize {
		return false
	}

	return dataOffset <= actualSize
}
