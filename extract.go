// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// extractWorkItem stores one selected member with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	file    ExtractedFile
}

// Extract writes selected members of the bundle to dstDir. Extraction is
// parallelized by MaxWorkers; on failure it returns the first encountered
// error. Member paths are normalized and traversal attempts rejected.
func (b *Bundle) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if b == nil {
		return nil
	}
	opts.applyDefaults()

	matcher, err := newIncludeMatcher(opts.Include, opts.IncludeMatcherOptions)
	if err != nil {
		return err
	}

	workItems, err := prepareExtractWorkItems(b.Files, matcher)
	if err != nil {
		return err
	}

	if len(workItems) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return err
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range workItems {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			return extractPreparedMember(dstRootAbs, task, opts.FileMode, opts.OnFileDone)
		})
	}

	return g.Wait()
}

// prepareExtractWorkItems validates selected members and prepares relative fs paths.
func prepareExtractWorkItems(files []ExtractedFile, matcher *includeMatcher) ([]extractWorkItem, error) {
	workItems := make([]extractWorkItem, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.Path) == "" {
			continue
		}

		if !matcher.Match(file.Path) {
			continue
		}

		normalizedPath, err := normalizeExtractMemberPath(file.Path)
		if err != nil {
			return nil, fmt.Errorf("normalize member path %s: %w", file.Path, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." || relDir == "" {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			file:    file,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, nil
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// extractPreparedMember writes one prepared work item to destination root.
func extractPreparedMember(
	dstRootAbs string,
	task extractWorkItem,
	fileMode ExtractFileMode,
	onFileDone func(file ExtractedFile, written int64, outputPath string),
) error {
	outPath := filepath.Join(dstRootAbs, task.relPath)

	file, err := openExtractFile(outPath, fileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.file.Path, err)
	}

	written, writeErr := file.Write(task.file.Body)
	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("write %s: %w", task.file.Path, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.file.Path, closeErr)
	}

	if onFileDone != nil {
		onFileDone(task.file, int64(written), outPath)
	}

	return nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, nil
		}

		if !os.IsExist(err) {
			return nil, err
		}

		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}
