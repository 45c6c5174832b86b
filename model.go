// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	// blocksInfoHashSize is the opaque digest prefixing the blocks-info tables.
	blocksInfoHashSize = 16
	// storageBlockRecordSize is the wire size of one storage-block record.
	storageBlockRecordSize = 4 + 4 + 2
	// directoryNodeMinSize is the wire size of one node record with empty path.
	directoryNodeMinSize = 8 + 8 + 4 + 1
	// probeMinSize is the minimal serialized-assets header the sniffer accepts.
	probeMinSize = 20
	// probeMinSizeV22 is the minimal header for serialized format version >= 22.
	probeMinSizeV22 = 48
	// maxSignatureLen bounds signature scanning during classification.
	maxSignatureLen = 32
	// alignedFormatVersion is the first bundle version with 16-byte alignment
	// padding between the descriptor and the blocks-info payload.
	alignedFormatVersion = 7
	// blocksInfoAlignment is the padding boundary for aligned format versions.
	blocksInfoAlignment = 16
)

// Default parse tuning values.
const (
	// DefaultMaxPayloadSize caps the total declared uncompressed payload (4 GiB).
	DefaultMaxPayloadSize = int64(1) << 32
)

// Recognized container signatures.
const (
	SignatureUnityFS      = "UnityFS"
	SignatureUnityWeb     = "UnityWeb"
	SignatureUnityRaw     = "UnityRaw"
	SignatureUnityArchive = "UnityArchive"
	SignatureWebData      = "UnityWebData1.0"
)

// Descriptor and block flag layout.
const (
	// compressionMask extracts the codec selector from a flags field.
	compressionMask = 0x3F
	// flagBlocksInfoAtEnd marks blocks-info stored at the buffer tail.
	flagBlocksInfoAtEnd = 0x80
)

// FileType is the container kind assigned by DetectFileType.
type FileType string

// Container kinds distinguishable by signature and structural probing.
const (
	// FileTypeBundle is a block-compressed asset-bundle container.
	FileTypeBundle FileType = "bundle"
	// FileTypeWebData is a web-player data container.
	FileTypeWebData FileType = "web_data"
	// FileTypeSerializedAssets is a bare serialized-assets file (self-describing header).
	FileTypeSerializedAssets FileType = "serialized_assets"
	// FileTypeResource is any buffer that matches no known container layout.
	FileTypeResource FileType = "resource"
)

// Compression identifies the codec used for one compressed region.
// Values are wire constants from the container format.
type Compression uint16

// Codec selectors carried in the low 6 bits of flags fields.
const (
	// CompressionNone marks an uncompressed region.
	CompressionNone Compression = 0
	// CompressionLZMA marks raw LZMA data (5 props bytes, no embedded size).
	CompressionLZMA Compression = 1
	// CompressionLZ4 marks an LZ4 block.
	CompressionLZ4 Compression = 2
	// CompressionLZ4HC marks an LZ4 block produced by the high-compression
	// encoder; the decode path is identical to CompressionLZ4.
	CompressionLZ4HC Compression = 3
)

// String returns the human-readable codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZ4HC:
		return "lz4hc"
	default:
		return "unknown"
	}
}

// BundleHeader is the parsed textual preamble of a bundle container.
// Immutable once parsed; identifies archive kind and layout version.
type BundleHeader struct {
	// Signature is the container signature token (e.g. "UnityFS").
	Signature string `json:"signature" yaml:"signature"`
	// EngineVersion is the minimal-engine version string (e.g. "5.x.x").
	EngineVersion string `json:"engine_version" yaml:"engine_version"`
	// EngineRevision is the exact engine revision string (e.g. "2019.4.1f1").
	EngineRevision string `json:"engine_revision" yaml:"engine_revision"`
	// FormatVersion gates header and descriptor layout variants.
	FormatVersion uint32 `json:"format_version" yaml:"format_version"`
}

// ContainerDescriptor is the fixed-size block-compression metadata
// immediately following the header.
type ContainerDescriptor struct {
	// TotalSize is the declared size of the whole container in bytes.
	TotalSize int64 `json:"total_size" yaml:"total_size"`
	// CompressedBlocksInfoSize is stored blocks-info size in bytes.
	CompressedBlocksInfoSize uint32 `json:"compressed_blocks_info_size" yaml:"compressed_blocks_info_size"`
	// UncompressedBlocksInfoSize is decompressed blocks-info size in bytes.
	UncompressedBlocksInfoSize uint32 `json:"uncompressed_blocks_info_size" yaml:"uncompressed_blocks_info_size"`
	// Flags carry blocks-info placement and codec selector bits.
	Flags uint32 `json:"flags" yaml:"flags"`
}

// BlocksInfoAtEnd reports whether blocks-info is stored at the buffer tail.
func (d ContainerDescriptor) BlocksInfoAtEnd() bool {
	return d.Flags&flagBlocksInfoAtEnd != 0
}

// BlocksInfoCompression returns the codec selector for the blocks-info payload.
func (d ContainerDescriptor) BlocksInfoCompression() Compression {
	return Compression(d.Flags & compressionMask)
}

// StorageBlock describes one independently compressed storage block.
// Block order is semantically significant: decompressed outputs are
// concatenated in list order to form the flat payload.
type StorageBlock struct {
	// UncompressedSize is decompressed block size in bytes.
	UncompressedSize uint32 `json:"uncompressed_size" yaml:"uncompressed_size"`
	// CompressedSize is stored block size in bytes.
	CompressedSize uint32 `json:"compressed_size" yaml:"compressed_size"`
	// CodecFlags carry the block codec selector in the low 6 bits.
	CodecFlags uint16 `json:"codec_flags" yaml:"codec_flags"`
}

// Compression returns the codec selector for this block's data.
func (b StorageBlock) Compression() Compression {
	return Compression(b.CodecFlags) & compressionMask
}

// DirectoryNode describes one logical member file of the flat payload.
// Node order determines sequential slicing order during reconstruction.
type DirectoryNode struct {
	// Path is the member path as stored in the directory table.
	Path string `json:"path" yaml:"path"`
	// Offset is the declared member offset within the flat payload.
	// Reconstruction is sequential; this field is validated, never seeked to.
	Offset int64 `json:"offset" yaml:"offset"`
	// Size is member size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Flags carry member metadata bits (opaque to this package).
	Flags uint32 `json:"flags" yaml:"flags"`
}

// ExtractedFile is one reconstructed member file.
type ExtractedFile struct {
	// Path is the member path from its directory node.
	Path string `json:"path" yaml:"path"`
	// FileName mirrors Path (members carry no separate display name).
	FileName string `json:"file_name" yaml:"file_name"`
	// Body is the member content. It aliases the bundle's flat payload;
	// callers must copy before mutating.
	Body []byte `json:"-" yaml:"-"`
}

// Bundle is the complete parse result for one container buffer.
// All fields are populated in a single Parse call and immutable thereafter.
type Bundle struct {
	// Header is the parsed textual preamble.
	Header BundleHeader `json:"header" yaml:"header"`
	// Descriptor is the parsed block-compression metadata.
	Descriptor ContainerDescriptor `json:"descriptor" yaml:"descriptor"`
	// BlocksInfoHash is the opaque 16-byte digest from the blocks-info tables.
	BlocksInfoHash [blocksInfoHashSize]byte `json:"blocks_info_hash" yaml:"blocks_info_hash"`
	// Blocks are storage-block records in wire order.
	Blocks []StorageBlock `json:"blocks" yaml:"blocks"`
	// Nodes are directory-node records in wire order.
	Nodes []DirectoryNode `json:"nodes" yaml:"nodes"`
	// Files are reconstructed members, one per node, in node order.
	Files []ExtractedFile `json:"files" yaml:"files"`
}

// File returns the member with the given normalized path.
func (b *Bundle) File(path string) (ExtractedFile, bool) {
	if b == nil {
		return ExtractedFile{}, false
	}

	lookup := NormalizePath(path)
	for i := range b.Files {
		if NormalizePath(b.Files[i].Path) == lookup {
			return b.Files[i], true
		}
	}

	return ExtractedFile{}, false
}

// OffsetMode controls how directory reconstruction treats stored node offsets.
type OffsetMode string

// Directory offset handling modes.
const (
	// OffsetModeValidate requires each node's stored offset to match the
	// sequential reconstruction cursor and fails on divergence.
	OffsetModeValidate OffsetMode = "validate"
	// OffsetModeSequential ignores stored offsets and slices purely by size,
	// for archives whose index carries junk offsets.
	OffsetModeSequential OffsetMode = "sequential"
)

// ParseOptions configures parse hardening behavior.
type ParseOptions struct {
	// OffsetMode controls whether stored node offsets are validated.
	OffsetMode OffsetMode `json:"offset_mode,omitempty" yaml:"offset_mode,omitempty"`
	// MaxPayloadSize caps the total declared uncompressed payload in bytes.
	// Zero means DefaultMaxPayloadSize; negative disables the cap.
	MaxPayloadSize int64 `json:"max_payload_size,omitempty" yaml:"max_payload_size,omitempty"`
	// MaxWorkers is number of block decompression workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// StrictCodecs rejects unknown codec selectors with ErrUnsupportedCodec
	// instead of the legacy passthrough fallback.
	StrictCodecs bool `json:"strict_codecs,omitempty" yaml:"strict_codecs,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnFileDone is called after one member is fully written to disk.
	OnFileDone func(file ExtractedFile, written int64, outputPath string) `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Include defines ordered path rules selecting members to extract;
	// empty means all members.
	Include []pathrules.Rule `json:"include,omitempty" yaml:"include,omitempty"`
	// IncludeMatcherOptions control include rule matching.
	IncludeMatcherOptions pathrules.MatcherOptions `json:"include_matcher_options,omitzero" yaml:"include_matcher_options,omitzero"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// applyDefaults fills zero-valued parse options with defaults.
func (opts *ParseOptions) applyDefaults() {
	if opts.OffsetMode == "" {
		opts.OffsetMode = OffsetModeValidate
	}

	if opts.MaxPayloadSize == 0 {
		opts.MaxPayloadSize = DefaultMaxPayloadSize
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeAuto
	}

	if opts.IncludeMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.IncludeMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}
