package unitybundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

type testMember struct {
	path string
	body []byte
}

// bundleFixture describes one synthetic container for tests. Zero values
// produce a well-formed single-block UnityFS version 6 bundle.
type bundleFixture struct {
	signature       string
	engineVersion   string
	engineRevision  string
	members         []testMember
	nodeOffsets     []int64 // override stored node offsets
	nodeSizes       []int64 // override stored node sizes
	infoRawOverride []byte  // replace blocks-info payload entirely
	formatVersion   uint32
	extraFlags      uint32
	totalSizeDelta  int64
	blockSize       int
	infoCodec       Compression
	blockCodec      Compression
	infoAtEnd       bool
}

// compressibleBody returns n bytes of patterned, well-compressible content.
func compressibleBody(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i/32)
	}

	return out
}

// lz4CompressBlock compresses src as one LZ4 block and fails the test on
// incompressible input (fixtures must use patterned bodies).
func lz4CompressBlock(t *testing.T, src []byte) []byte {
	t.Helper()

	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		t.Fatalf("lz4 compress: %v", err)
	}
	if n == 0 {
		t.Fatal("lz4 compress: fixture data is incompressible")
	}

	return dst[:n]
}

// lzmaCompressRaw compresses src into the container's raw LZMA layout:
// 5 properties bytes followed by the stream, with no embedded size field.
func lzmaCompressRaw(t *testing.T, src []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		t.Fatalf("lzma writer: %v", err)
	}
	if _, err := w.Write(src); err != nil {
		t.Fatalf("lzma write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lzma close: %v", err)
	}

	full := buf.Bytes()
	if len(full) < lzmaHeaderSize {
		t.Fatalf("lzma stream too short: %d bytes", len(full))
	}

	raw := make([]byte, 0, len(full)-8)
	raw = append(raw, full[:lzmaPropsSize]...)
	raw = append(raw, full[lzmaHeaderSize:]...)
	return raw
}

// compressRegion encodes src for the given codec selector; unknown selectors
// store src unchanged, mirroring the passthrough fallback.
func compressRegion(t *testing.T, src []byte, codec Compression) []byte {
	t.Helper()

	switch codec {
	case CompressionNone:
		return src
	case CompressionLZMA:
		return lzmaCompressRaw(t, src)
	case CompressionLZ4, CompressionLZ4HC:
		return lz4CompressBlock(t, src)
	default:
		return src
	}
}

// buildBundle assembles one container buffer from the fixture description.
func buildBundle(t *testing.T, fx bundleFixture) []byte {
	t.Helper()

	if fx.signature == "" {
		fx.signature = SignatureUnityFS
	}
	if fx.formatVersion == 0 {
		fx.formatVersion = 6
	}
	if fx.engineVersion == "" {
		fx.engineVersion = "5.x.x"
	}
	if fx.engineRevision == "" {
		fx.engineRevision = "2019.4.1f1"
	}

	// Flat payload and directory-node records.
	var flat []byte
	var nodeRecords bytes.Buffer
	var offset int64
	for i, m := range fx.members {
		declaredOffset := offset
		if fx.nodeOffsets != nil {
			declaredOffset = fx.nodeOffsets[i]
		}
		declaredSize := int64(len(m.body))
		if fx.nodeSizes != nil {
			declaredSize = fx.nodeSizes[i]
		}

		_ = binary.Write(&nodeRecords, binary.BigEndian, declaredOffset)
		_ = binary.Write(&nodeRecords, binary.BigEndian, declaredSize)
		_ = binary.Write(&nodeRecords, binary.BigEndian, uint32(4))
		nodeRecords.WriteString(m.path)
		nodeRecords.WriteByte(0)

		flat = append(flat, m.body...)
		offset += int64(len(m.body))
	}

	// Storage blocks.
	blockSize := fx.blockSize
	if blockSize <= 0 {
		blockSize = len(flat)
	}
	if blockSize == 0 {
		blockSize = 1
	}

	type rawBlock struct {
		uncompressed []byte
		stored       []byte
	}
	var blocks []rawBlock
	for start := 0; start < len(flat); start += blockSize {
		end := start + blockSize
		if end > len(flat) {
			end = len(flat)
		}

		chunk := flat[start:end]
		blocks = append(blocks, rawBlock{
			uncompressed: chunk,
			stored:       compressRegion(t, chunk, fx.blockCodec),
		})
	}

	// Blocks-info tables.
	var infoRaw []byte
	if fx.infoRawOverride != nil {
		infoRaw = fx.infoRawOverride
	} else {
		var info bytes.Buffer
		info.Write(make([]byte, blocksInfoHashSize))
		_ = binary.Write(&info, binary.BigEndian, int32(len(blocks)))
		for _, b := range blocks {
			_ = binary.Write(&info, binary.BigEndian, uint32(len(b.uncompressed)))
			_ = binary.Write(&info, binary.BigEndian, uint32(len(b.stored)))
			_ = binary.Write(&info, binary.BigEndian, uint16(fx.blockCodec))
		}
		_ = binary.Write(&info, binary.BigEndian, int32(len(fx.members)))
		info.Write(nodeRecords.Bytes())
		infoRaw = info.Bytes()
	}

	infoStored := compressRegion(t, infoRaw, fx.infoCodec)

	flags := uint32(fx.infoCodec) | fx.extraFlags
	if fx.infoAtEnd {
		flags |= flagBlocksInfoAtEnd
	}

	// Assembly.
	var out bytes.Buffer
	out.WriteString(fx.signature)
	out.WriteByte(0)
	_ = binary.Write(&out, binary.BigEndian, fx.formatVersion)
	out.WriteString(fx.engineVersion)
	out.WriteByte(0)
	out.WriteString(fx.engineRevision)
	out.WriteByte(0)

	totalSizePos := out.Len()
	_ = binary.Write(&out, binary.BigEndian, int64(0)) // patched below
	_ = binary.Write(&out, binary.BigEndian, uint32(len(infoStored)))
	_ = binary.Write(&out, binary.BigEndian, uint32(len(infoRaw)))
	_ = binary.Write(&out, binary.BigEndian, flags)

	if fx.formatVersion >= alignedFormatVersion {
		for out.Len()%blocksInfoAlignment != 0 {
			out.WriteByte(0)
		}
	}

	if !fx.infoAtEnd {
		out.Write(infoStored)
	}
	for _, b := range blocks {
		out.Write(b.stored)
	}
	if fx.infoAtEnd {
		out.Write(infoStored)
	}

	buf := out.Bytes()
	binary.BigEndian.PutUint64(buf[totalSizePos:], uint64(int64(len(buf))+fx.totalSizeDelta))
	return buf
}

// defaultMembers are the canonical two-member fixture contents.
func defaultMembers() []testMember {
	return []testMember{
		{path: "CAB-5813386f0ea15049abeb5a688d9031d3", body: compressibleBody(4512, 0x10)},
		{path: "CAB-5813386f0ea15049abeb5a688d9031d3.resS", body: compressibleBody(224, 0x80)},
	}
}

func TestParse_EndToEndInlineBlocksInfo(t *testing.T) {
	t.Parallel()

	members := defaultMembers()
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionLZ4HC,
		blockCodec: CompressionLZ4HC,
		extraFlags: 0x40, // combined-info bit, yields descriptor flags 67
	})

	b, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if b.Header.Signature != "UnityFS" {
		t.Errorf("Signature=%q, want UnityFS", b.Header.Signature)
	}
	if b.Header.FormatVersion != 6 {
		t.Errorf("FormatVersion=%d, want 6", b.Header.FormatVersion)
	}
	if b.Header.EngineVersion != "5.x.x" {
		t.Errorf("EngineVersion=%q, want 5.x.x", b.Header.EngineVersion)
	}
	if b.Header.EngineRevision != "2019.4.1f1" {
		t.Errorf("EngineRevision=%q, want 2019.4.1f1", b.Header.EngineRevision)
	}
	if b.Descriptor.Flags != 67 {
		t.Errorf("Flags=%d, want 67", b.Descriptor.Flags)
	}
	if b.Descriptor.BlocksInfoAtEnd() {
		t.Error("BlocksInfoAtEnd()=true for flags 67")
	}
	if got := b.Descriptor.BlocksInfoCompression(); got != CompressionLZ4HC {
		t.Errorf("BlocksInfoCompression()=%v, want lz4hc", got)
	}

	if len(b.Files) != 2 {
		t.Fatalf("len(Files)=%d, want 2", len(b.Files))
	}
	if b.Files[0].Path != "CAB-5813386f0ea15049abeb5a688d9031d3" {
		t.Errorf("Files[0].Path=%q", b.Files[0].Path)
	}
	if len(b.Files[0].Body) != 4512 {
		t.Errorf("len(Files[0].Body)=%d, want 4512", len(b.Files[0].Body))
	}
	if !bytes.Equal(b.Files[0].Body, members[0].body) {
		t.Error("Files[0].Body differs from source member")
	}
	if !bytes.Equal(b.Files[1].Body, members[1].body) {
		t.Error("Files[1].Body differs from source member")
	}

	var total int
	for _, f := range b.Files {
		total += len(f.Body)
	}
	var declared int
	for _, blk := range b.Blocks {
		declared += int(blk.UncompressedSize)
	}
	if total != declared {
		t.Errorf("sum of member bodies=%d, sum of block uncompressed sizes=%d", total, declared)
	}

	f, ok := b.File("CAB-5813386f0ea15049abeb5a688d9031d3.resS")
	if !ok {
		t.Fatal("File lookup failed for .resS member")
	}
	if f.FileName != f.Path {
		t.Errorf("FileName=%q, want %q", f.FileName, f.Path)
	}
}

func TestParse_BlocksInfoAtEnd(t *testing.T) {
	t.Parallel()

	members := defaultMembers()
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionLZ4HC,
		blockCodec: CompressionLZ4,
		infoAtEnd:  true,
	})

	b, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !b.Descriptor.BlocksInfoAtEnd() {
		t.Error("BlocksInfoAtEnd()=false")
	}
	if len(b.Files) != 2 {
		t.Fatalf("len(Files)=%d, want 2", len(b.Files))
	}
	for i := range members {
		if !bytes.Equal(b.Files[i].Body, members[i].body) {
			t.Errorf("Files[%d].Body differs from source member", i)
		}
	}
}

func TestParse_MultiBlockReassemblyOrder(t *testing.T) {
	t.Parallel()

	members := []testMember{
		{path: "CAB-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", body: compressibleBody(9000, 0x01)},
		{path: "CAB-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.resS", body: compressibleBody(3000, 0x40)},
	}
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionLZ4,
		blockCodec: CompressionLZ4,
		blockSize:  1024,
	})

	b, err := ParseWithOptions(buf, ParseOptions{MaxWorkers: 4})
	if err != nil {
		t.Fatalf("ParseWithOptions: %v", err)
	}

	if len(b.Blocks) != 12 {
		t.Fatalf("len(Blocks)=%d, want 12", len(b.Blocks))
	}
	if !bytes.Equal(b.Files[0].Body, members[0].body) {
		t.Error("first member corrupted across block boundaries")
	}
	if !bytes.Equal(b.Files[1].Body, members[1].body) {
		t.Error("second member corrupted across block boundaries")
	}
}

func TestParse_LZMAStorageBlock(t *testing.T) {
	t.Parallel()

	members := []testMember{
		{path: "CAB-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", body: compressibleBody(2048, 0x33)},
	}
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionNone,
		blockCodec: CompressionLZMA,
	})

	b, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(b.Files[0].Body, members[0].body) {
		t.Error("lzma block payload differs from source member")
	}
}

func TestParse_UncompressedEverything(t *testing.T) {
	t.Parallel()

	members := defaultMembers()
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionNone,
		blockCodec: CompressionNone,
	})

	b, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(b.Files[0].Body, members[0].body) {
		t.Error("uncompressed payload differs from source member")
	}
}

func TestParse_AlignedFormatVersion(t *testing.T) {
	t.Parallel()

	for _, atEnd := range []bool{false, true} {
		members := defaultMembers()
		buf := buildBundle(t, bundleFixture{
			members:       members,
			formatVersion: 7,
			infoCodec:     CompressionLZ4,
			blockCodec:    CompressionLZ4,
			infoAtEnd:     atEnd,
		})

		b, err := Parse(buf)
		if err != nil {
			t.Fatalf("Parse (atEnd=%v): %v", atEnd, err)
		}
		if b.Header.FormatVersion != 7 {
			t.Errorf("FormatVersion=%d, want 7", b.Header.FormatVersion)
		}
		if !bytes.Equal(b.Files[0].Body, members[0].body) {
			t.Errorf("aligned payload differs from source member (atEnd=%v)", atEnd)
		}
	}
}

func TestParse_OffsetMismatch(t *testing.T) {
	t.Parallel()

	members := defaultMembers()
	fx := bundleFixture{
		members:     members,
		infoCodec:   CompressionLZ4,
		blockCodec:  CompressionLZ4,
		nodeOffsets: []int64{0, 9999},
	}
	buf := buildBundle(t, fx)

	_, err := Parse(buf)
	if !errors.Is(err, ErrOffsetMismatch) {
		t.Fatalf("expected ErrOffsetMismatch, got %v", err)
	}

	// Sequential mode ignores stored offsets and still reconstructs.
	b, err := ParseWithOptions(buf, ParseOptions{OffsetMode: OffsetModeSequential})
	if err != nil {
		t.Fatalf("ParseWithOptions sequential: %v", err)
	}
	if !bytes.Equal(b.Files[1].Body, members[1].body) {
		t.Error("sequential reconstruction differs from source member")
	}
}

func TestParse_NodeOverrunsPayload(t *testing.T) {
	t.Parallel()

	buf := buildBundle(t, bundleFixture{
		members:    singleMember(),
		infoCodec:  CompressionLZ4,
		blockCodec: CompressionLZ4,
		nodeSizes:  []int64{100000},
	})

	_, err := Parse(buf)
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

// singleMember is a one-member fixture for malformed-metadata tests.
func singleMember() []testMember {
	return []testMember{
		{path: "CAB-cccccccccccccccccccccccccccccccc", body: compressibleBody(256, 0x22)},
	}
}

func TestParse_TruncatedBlocksInfoTables(t *testing.T) {
	t.Parallel()

	// Declared block count far exceeds the table bytes actually present.
	var info bytes.Buffer
	info.Write(make([]byte, blocksInfoHashSize))
	_ = binary.Write(&info, binary.BigEndian, int32(5000))

	buf := buildBundle(t, bundleFixture{
		members:         defaultMembers(),
		infoCodec:       CompressionNone,
		blockCodec:      CompressionNone,
		infoRawOverride: info.Bytes(),
	})

	_, err := Parse(buf)
	if !errors.Is(err, ErrTruncatedBlocksInfo) {
		t.Fatalf("expected ErrTruncatedBlocksInfo, got %v", err)
	}
}

func TestParse_BlockDataExceedsBuffer(t *testing.T) {
	t.Parallel()

	// One block whose declared compressed size exceeds the remaining buffer.
	var info bytes.Buffer
	info.Write(make([]byte, blocksInfoHashSize))
	_ = binary.Write(&info, binary.BigEndian, int32(1))
	_ = binary.Write(&info, binary.BigEndian, uint32(64))
	_ = binary.Write(&info, binary.BigEndian, uint32(1<<20))
	_ = binary.Write(&info, binary.BigEndian, uint16(CompressionNone))
	_ = binary.Write(&info, binary.BigEndian, int32(0))

	buf := buildBundle(t, bundleFixture{
		members:         singleMember(),
		infoCodec:       CompressionNone,
		blockCodec:      CompressionNone,
		infoRawOverride: info.Bytes(),
	})

	_, err := Parse(buf)
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestParse_TotalSizeMismatch(t *testing.T) {
	t.Parallel()

	buf := buildBundle(t, bundleFixture{
		members:        defaultMembers(),
		infoCodec:      CompressionLZ4,
		blockCodec:     CompressionLZ4,
		totalSizeDelta: 1,
	})

	_, err := Parse(buf)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestParse_MaxPayloadSizeCap(t *testing.T) {
	t.Parallel()

	buf := buildBundle(t, bundleFixture{
		members:    defaultMembers(),
		infoCodec:  CompressionLZ4,
		blockCodec: CompressionLZ4,
	})

	_, err := ParseWithOptions(buf, ParseOptions{MaxPayloadSize: 16})
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}

	// Negative disables the cap.
	if _, err := ParseWithOptions(buf, ParseOptions{MaxPayloadSize: -1}); err != nil {
		t.Fatalf("ParseWithOptions uncapped: %v", err)
	}
}

func TestParse_UnknownBlockCodecFallback(t *testing.T) {
	t.Parallel()

	members := singleMember()
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionNone,
		blockCodec: Compression(5), // stored raw by the fixture builder
	})

	b, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse with passthrough fallback: %v", err)
	}
	if !bytes.Equal(b.Files[0].Body, members[0].body) {
		t.Error("passthrough block differs from source member")
	}

	_, err = ParseWithOptions(buf, ParseOptions{StrictCodecs: true})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec in strict mode, got %v", err)
	}
}

func TestParse_LegacySignatures(t *testing.T) {
	t.Parallel()

	for _, sig := range []string{SignatureUnityWeb, SignatureUnityRaw, SignatureUnityArchive} {
		buf := buildBundle(t, bundleFixture{
			signature:  sig,
			members:    singleMember(),
			infoCodec:  CompressionNone,
			blockCodec: CompressionNone,
		})

		_, err := Parse(buf)
		if !errors.Is(err, ErrUnsupportedFormatVersion) {
			t.Errorf("Parse(%s): expected ErrUnsupportedFormatVersion, got %v", sig, err)
		}
	}
}

func TestParse_MalformedHeaders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		buf  []byte
	}{
		{name: "empty buffer", buf: nil},
		{name: "no signature terminator", buf: []byte("UnityFS")},
		{name: "empty signature", buf: []byte{0, 1, 2, 3}},
		{name: "non-letter signature", buf: []byte("Unity9FS\x00rest")},
		{name: "missing version", buf: []byte("UnityFS\x00")},
		{name: "unterminated engine version", buf: append([]byte("UnityFS\x00"), 0, 0, 0, 6, 'x')},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.buf)
			if !errors.Is(err, ErrMalformedHeader) {
				t.Fatalf("expected ErrMalformedHeader, got %v", err)
			}
		})
	}
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	buf := buildBundle(t, bundleFixture{
		signature:  SignatureUnityWeb,
		members:    singleMember(),
		infoCodec:  CompressionNone,
		blockCodec: CompressionNone,
	})

	// ReadHeader accepts legacy signatures Parse rejects.
	h, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Signature != SignatureUnityWeb {
		t.Errorf("Signature=%q, want %q", h.Signature, SignatureUnityWeb)
	}
	if h.EngineRevision != "2019.4.1f1" {
		t.Errorf("EngineRevision=%q", h.EngineRevision)
	}
}

func TestListNodes(t *testing.T) {
	t.Parallel()

	members := defaultMembers()
	buf := buildBundle(t, bundleFixture{
		members:    members,
		infoCodec:  CompressionLZ4,
		blockCodec: CompressionLZ4,
	})

	nodes, err := ListNodes(buf)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len(nodes)=%d, want 2", len(nodes))
	}
	if nodes[0].Path != members[0].path {
		t.Errorf("nodes[0].Path=%q, want %q", nodes[0].Path, members[0].path)
	}
	if nodes[1].Offset != int64(len(members[0].body)) {
		t.Errorf("nodes[1].Offset=%d, want %d", nodes[1].Offset, len(members[0].body))
	}
	if nodes[1].Size != int64(len(members[1].body)) {
		t.Errorf("nodes[1].Size=%d, want %d", nodes[1].Size, len(members[1].body))
	}
}
