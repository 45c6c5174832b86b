// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"fmt"
)

// Parse decodes one complete in-memory bundle container. It is all-or-nothing:
// any stage failure returns a nil Bundle and an error wrapping one of the
// package sentinel errors.
func Parse(buf []byte) (*Bundle, error) {
	return ParseWithOptions(buf, ParseOptions{})
}

// ParseWithOptions decodes one complete in-memory bundle container using
// explicit parse options.
func ParseWithOptions(buf []byte, opts ParseOptions) (*Bundle, error) {
	opts.applyDefaults()

	header, desc, info, payload, err := parseContainer(buf, opts)
	if err != nil {
		return nil, err
	}

	flat, err := decompressStorageBlocks(payload, info.blocks, opts)
	if err != nil {
		return nil, err
	}

	files, err := reconstructDirectory(flat, info.nodes, opts.OffsetMode)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Header:         header,
		Descriptor:     desc,
		BlocksInfoHash: info.hash,
		Blocks:         info.blocks,
		Nodes:          info.nodes,
		Files:          files,
	}, nil
}

// ReadHeader parses only the textual preamble of a bundle container.
// It accepts any recognized bundle signature, including legacy variants
// whose full layout Parse rejects.
func ReadHeader(buf []byte) (BundleHeader, error) {
	c := &cursor{buf: buf}
	return parseBundleHeader(c)
}

// ListNodes parses header, descriptor, and blocks-info tables and returns
// directory-node metadata without decompressing any storage block.
func ListNodes(buf []byte) ([]DirectoryNode, error) {
	return ListNodesWithOptions(buf, ParseOptions{})
}

// ListNodesWithOptions parses directory-node metadata using explicit parse options.
func ListNodesWithOptions(buf []byte, opts ParseOptions) ([]DirectoryNode, error) {
	opts.applyDefaults()

	_, _, info, _, err := parseContainer(buf, opts)
	if err != nil {
		return nil, err
	}

	return info.nodes, nil
}

// parseContainer runs the metadata stages shared by Parse and ListNodes:
// header, descriptor, version gating, blocks-info location and decode.
// The returned cursor is positioned at the first storage-block byte and
// bounded so tail-stored blocks-info is never consumed as block data.
func parseContainer(buf []byte, opts ParseOptions) (BundleHeader, ContainerDescriptor, *blocksInfo, *cursor, error) {
	var desc ContainerDescriptor

	c := &cursor{buf: buf}
	header, err := parseBundleHeader(c)
	if err != nil {
		return header, desc, nil, nil, err
	}

	switch header.Signature {
	case SignatureUnityFS:
	case SignatureUnityWeb, SignatureUnityRaw, SignatureUnityArchive:
		return header, desc, nil, nil, fmt.Errorf("%w: legacy container %q", ErrUnsupportedFormatVersion, header.Signature)
	default:
		return header, desc, nil, nil, fmt.Errorf("%w: unrecognized signature %q", ErrUnsupportedFormatVersion, header.Signature)
	}

	if desc, err = parseContainerDescriptor(c); err != nil {
		return header, desc, nil, nil, err
	}

	if desc.TotalSize != int64(len(buf)) {
		return header, desc, nil, nil, fmt.Errorf("%w: descriptor declares %d bytes, buffer holds %d",
			ErrSizeMismatch, desc.TotalSize, len(buf))
	}

	if header.FormatVersion >= alignedFormatVersion {
		if err := c.align(blocksInfoAlignment); err != nil {
			return header, desc, nil, nil, fmt.Errorf("%w: alignment padding exceeds buffer", ErrTruncatedBlocksInfo)
		}
	}

	infoRaw, err := locateBlocksInfo(c, desc)
	if err != nil {
		return header, desc, nil, nil, err
	}

	decoded, err := decompress(infoRaw, desc.UncompressedBlocksInfoSize, desc.BlocksInfoCompression(), opts.StrictCodecs)
	if err != nil {
		return header, desc, nil, nil, fmt.Errorf("blocks info: %w", err)
	}

	info, err := parseBlocksInfo(decoded)
	if err != nil {
		return header, desc, nil, nil, err
	}

	// Block data spans from here to the buffer end, minus a tail-stored
	// blocks-info region.
	dataEnd := len(buf)
	if desc.BlocksInfoAtEnd() {
		dataEnd -= int(desc.CompressedBlocksInfoSize)
	}

	payload := &cursor{buf: buf[:dataEnd], off: c.pos()}
	return header, desc, info, payload, nil
}
