// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

/*
Package unitybundle decodes Unity asset-bundle containers: it classifies a
raw buffer, parses the self-describing header and block-compression metadata,
decompresses the storage blocks into one flat payload, and slices that payload
into named member files. The format is read-only in this package; writing
bundles and interpreting member contents as engine objects are out of scope.

Parsing is a single pass over a caller-supplied in-memory buffer. Every stage
failure aborts the whole parse with an error wrapping one of the package
sentinel errors; no partial Bundle is ever returned.

# Classifying

Classification is total over arbitrary bytes and never fails:

	switch unitybundle.DetectFileType(buf) {
	case unitybundle.FileTypeBundle:
	    // block-compressed bundle, Parse applies
	case unitybundle.FileTypeWebData:
	case unitybundle.FileTypeSerializedAssets:
	case unitybundle.FileTypeResource:
	}

# Reading

Parse a bundle and walk its members:

	b, err := unitybundle.Parse(buf)
	if err != nil {
	    return err
	}
	for _, f := range b.Files {
	    // use f.Path, f.Body
	}

Parse hardening is configured through options. Storage blocks decompress in
parallel; output order is always the original block order:

	b, err := unitybundle.ParseWithOptions(buf, unitybundle.ParseOptions{
	    OffsetMode:     unitybundle.OffsetModeSequential,
	    MaxPayloadSize: 256 << 20,
	    StrictCodecs:   true,
	    MaxWorkers:     4,
	})

For metadata-only scans, read the header or the directory table without
decompressing any block payload:

	header, err := unitybundle.ReadHeader(buf)
	if err != nil {
	    return err
	}
	nodes, err := unitybundle.ListNodes(buf)
	if err != nil {
	    return err
	}
	_, _ = header, nodes

# Extracting

Write members to a directory (parallel workers, sanitized paths). Selection
rules use github.com/woozymasta/pathrules:

	err := b.Extract(ctx, "out/", unitybundle.ExtractOptions{
	    MaxWorkers: 4,
	    Include: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "CAB-*"},
	    },
	})
*/
package unitybundle
