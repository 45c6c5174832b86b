// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// decompressStorageBlocks walks the storage-block sequence in order,
// consuming exactly CompressedSize bytes per block from the cursor and
// decoding each with its own codec flags. Blocks decode in parallel, each
// into its pre-computed region of one flat payload, so concatenation order is
// preserved regardless of completion order.
func decompressStorageBlocks(c *cursor, blocks []StorageBlock, opts ParseOptions) ([]byte, error) {
	starts := make([]int64, len(blocks)+1)
	var totalCompressed int64
	for i, b := range blocks {
		starts[i+1] = starts[i] + int64(b.UncompressedSize)
		totalCompressed += int64(b.CompressedSize)
	}

	totalUncompressed := starts[len(blocks)]
	if opts.MaxPayloadSize >= 0 && totalUncompressed > opts.MaxPayloadSize {
		return nil, fmt.Errorf("%w: declared payload of %d bytes exceeds limit %d",
			ErrSizeMismatch, totalUncompressed, opts.MaxPayloadSize)
	}
	if totalCompressed > int64(c.remaining()) {
		return nil, fmt.Errorf("%w: %d compressed block bytes declared, %d remain",
			ErrTruncatedPayload, totalCompressed, c.remaining())
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	flat := make([]byte, totalUncompressed)
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := range blocks {
		block := blocks[i]
		compressed, err := c.take(int(block.CompressedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: storage block %d", ErrTruncatedPayload, i)
		}

		dst := flat[starts[i]:starts[i+1]]
		g.Go(func() error {
			out, err := decompress(compressed, block.UncompressedSize, block.Compression(), opts.StrictCodecs)
			if err != nil {
				return fmt.Errorf("storage block %d: %w", i, err)
			}

			if len(out) != len(dst) {
				return fmt.Errorf("%w: storage block %d yields %d bytes, want %d",
					ErrSizeMismatch, i, len(out), len(dst))
			}

			copy(dst, out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return flat, nil
}

// reconstructDirectory slices the flat payload into member files by walking
// directory nodes in order with a running cursor. Stored node offsets are
// never used to seek; in validate mode each one must match the cursor.
func reconstructDirectory(flat []byte, nodes []DirectoryNode, mode OffsetMode) ([]ExtractedFile, error) {
	files := make([]ExtractedFile, 0, len(nodes))
	var pos int64

	for i, node := range nodes {
		if node.Size < 0 {
			return nil, fmt.Errorf("%w: node %d declares negative size %d", ErrTruncatedPayload, i, node.Size)
		}

		if mode == OffsetModeValidate && node.Offset != pos {
			return nil, fmt.Errorf("%w: node %d (%s) declares offset %d, reconstruction cursor at %d",
				ErrOffsetMismatch, i, node.Path, node.Offset, pos)
		}

		end := pos + node.Size
		if end > int64(len(flat)) {
			return nil, fmt.Errorf("%w: node %d (%s) needs %d bytes, %d remain",
				ErrTruncatedPayload, i, node.Path, node.Size, int64(len(flat))-pos)
		}

		files = append(files, ExtractedFile{
			Path:     node.Path,
			FileName: node.Path,
			Body:     flat[pos:end],
		})
		pos = end
	}

	return files, nil
}
