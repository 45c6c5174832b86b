// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"fmt"
)

// parseBundleHeader reads the textual preamble from the cursor position:
// NUL-terminated ASCII-letters signature, big-endian format version, then
// NUL-terminated engine version and revision strings.
func parseBundleHeader(c *cursor) (BundleHeader, error) {
	var h BundleHeader

	sig, err := c.stringZ()
	if err != nil {
		return h, fmt.Errorf("%w: unterminated signature", ErrMalformedHeader)
	}
	if !isSignatureToken(sig) {
		return h, fmt.Errorf("%w: bad signature token %q", ErrMalformedHeader, sig)
	}
	h.Signature = sig

	if h.FormatVersion, err = c.u32(); err != nil {
		return h, fmt.Errorf("%w: short format version", ErrMalformedHeader)
	}

	if h.EngineVersion, err = c.stringZ(); err != nil {
		return h, fmt.Errorf("%w: unterminated engine version", ErrMalformedHeader)
	}

	if h.EngineRevision, err = c.stringZ(); err != nil {
		return h, fmt.Errorf("%w: unterminated engine revision", ErrMalformedHeader)
	}

	return h, nil
}

// isSignatureToken reports whether s is a non-empty ASCII-letters run.
func isSignatureToken(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isASCIIAlpha(s[i]) {
			return false
		}
	}

	return true
}

// parseContainerDescriptor reads the fixed-size block-compression metadata
// immediately following the header. Semantic interpretation of Flags happens
// in the blocks-info decoder.
func parseContainerDescriptor(c *cursor) (ContainerDescriptor, error) {
	var d ContainerDescriptor
	var err error

	if d.TotalSize, err = c.i64(); err != nil {
		return d, fmt.Errorf("%w: short descriptor", ErrMalformedHeader)
	}

	if d.CompressedBlocksInfoSize, err = c.u32(); err != nil {
		return d, fmt.Errorf("%w: short descriptor", ErrMalformedHeader)
	}

	if d.UncompressedBlocksInfoSize, err = c.u32(); err != nil {
		return d, fmt.Errorf("%w: short descriptor", ErrMalformedHeader)
	}

	if d.Flags, err = c.u32(); err != nil {
		return d, fmt.Errorf("%w: short descriptor", ErrMalformedHeader)
	}

	return d, nil
}

// blocksInfo holds the decoded storage-block and directory-node tables.
type blocksInfo struct {
	blocks []StorageBlock
	nodes  []DirectoryNode
	hash   [blocksInfoHashSize]byte
}

// locateBlocksInfo resolves the compressed blocks-info region. When stored at
// the tail it is the last CompressedBlocksInfoSize bytes of the whole buffer
// and the cursor is left untouched; otherwise it is consumed inline from the
// cursor position.
func locateBlocksInfo(c *cursor, desc ContainerDescriptor) ([]byte, error) {
	size := int(desc.CompressedBlocksInfoSize)

	if desc.BlocksInfoAtEnd() {
		if size > len(c.buf)-c.pos() {
			return nil, fmt.Errorf("%w: tail blocks info of %d bytes overlaps header", ErrTruncatedBlocksInfo, size)
		}

		return c.buf[len(c.buf)-size:], nil
	}

	raw, err := c.take(size)
	if err != nil {
		return nil, fmt.Errorf("%w: inline blocks info of %d bytes exceeds buffer", ErrTruncatedBlocksInfo, size)
	}

	return raw, nil
}

// parseBlocksInfo decodes the decompressed blocks-info payload: 16 opaque
// hash bytes, the storage-block table, then the directory-node table. Record
// counts are validated against remaining bytes before any table allocation.
func parseBlocksInfo(raw []byte) (*blocksInfo, error) {
	c := &cursor{buf: raw}
	info := &blocksInfo{}

	hash, err := c.take(blocksInfoHashSize)
	if err != nil {
		return nil, fmt.Errorf("%w: short hash", ErrTruncatedBlocksInfo)
	}
	copy(info.hash[:], hash)

	blockCount, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("%w: short block count", ErrTruncatedBlocksInfo)
	}
	if blockCount < 0 || int64(blockCount)*storageBlockRecordSize > int64(c.remaining()) {
		return nil, fmt.Errorf("%w: %d block records exceed %d remaining bytes", ErrTruncatedBlocksInfo, blockCount, c.remaining())
	}

	info.blocks = make([]StorageBlock, blockCount)
	for i := range info.blocks {
		// Wire order is uncompressed size, compressed size, codec flags.
		if info.blocks[i].UncompressedSize, err = c.u32(); err != nil {
			return nil, fmt.Errorf("%w: block %d", ErrTruncatedBlocksInfo, i)
		}
		if info.blocks[i].CompressedSize, err = c.u32(); err != nil {
			return nil, fmt.Errorf("%w: block %d", ErrTruncatedBlocksInfo, i)
		}
		if info.blocks[i].CodecFlags, err = c.u16(); err != nil {
			return nil, fmt.Errorf("%w: block %d", ErrTruncatedBlocksInfo, i)
		}
	}

	nodeCount, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("%w: short node count", ErrTruncatedBlocksInfo)
	}
	if nodeCount < 0 || int64(nodeCount)*directoryNodeMinSize > int64(c.remaining()) {
		return nil, fmt.Errorf("%w: %d node records exceed %d remaining bytes", ErrTruncatedBlocksInfo, nodeCount, c.remaining())
	}

	info.nodes = make([]DirectoryNode, nodeCount)
	for i := range info.nodes {
		if info.nodes[i].Offset, err = c.i64(); err != nil {
			return nil, fmt.Errorf("%w: node %d", ErrTruncatedBlocksInfo, i)
		}
		if info.nodes[i].Size, err = c.i64(); err != nil {
			return nil, fmt.Errorf("%w: node %d", ErrTruncatedBlocksInfo, i)
		}
		if info.nodes[i].Flags, err = c.u32(); err != nil {
			return nil, fmt.Errorf("%w: node %d", ErrTruncatedBlocksInfo, i)
		}
		if info.nodes[i].Path, err = c.stringZ(); err != nil {
			return nil, fmt.Errorf("%w: node %d path", ErrTruncatedBlocksInfo, i)
		}
	}

	return info, nil
}
