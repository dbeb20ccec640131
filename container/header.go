package container

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/INLOpen/dictbase/core"
)

// Section locates one of the four container sections within the file.
type Section struct {
	Offset uint64
	Length uint64
}

func (s Section) end() uint64 { return s.Offset + s.Length }

// Header is the parsed container header. It carries the free-form metadata
// attributes, the default codec kinds the builder used, the entry and
// block counts, and the location of the four sections.
type Header struct {
	Version    uint8
	Attributes map[string]string

	DefaultCompression core.CompressionType
	DefaultEncryption  core.EncryptionType

	EntryCount       uint64
	KeyBlockCount    uint32
	RecordBlockCount uint32

	KeySummaries    Section
	KeyBlocks       Section
	RecordSummaries Section
	RecordBlocks    Section
}

const (
	// headerPreludeSize covers magic (u32), version (u8) and the metadata
	// length (u32). The metadata text follows, then headerFixedSize bytes.
	headerPreludeSize = 4 + 1 + 4

	// headerFixedSize covers the fields after the metadata: default
	// compression and encryption kinds, entry count, key and record block
	// counts, four offset/length pairs, and the trailing crc32.
	headerFixedSize = 1 + 1 + 8 + 4 + 4 + 4*16 + core.ChecksumSize

	// maxHeaderMetadata bounds the metadata text so a corrupt length field
	// cannot drive a huge allocation.
	maxHeaderMetadata = 1 << 20
)

// HeaderSizeFor returns the full header size for a given metadata length.
func HeaderSizeFor(metaLen uint32) int {
	return headerPreludeSize + int(metaLen) + headerFixedSize
}

// EncodedSize returns the number of bytes Append will produce.
func (h *Header) EncodedSize() int {
	return HeaderSizeFor(uint32(len(h.metadataText())))
}

// metadataText renders the attributes as one "key=value" line each, in
// sorted key order so serialization is deterministic.
func (h *Header) metadataText() string {
	if len(h.Attributes) == 0 {
		return ""
	}
	names := make([]string, 0, len(h.Attributes))
	for name := range h.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(h.Attributes[name])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Attr returns a metadata attribute, or "" when absent.
func (h *Header) Attr(name string) string {
	return h.Attributes[name]
}

// Title returns the container's display title attribute.
func (h *Header) Title() string { return h.Attr(core.AttrTitle) }

// Description returns the container's description attribute.
func (h *Header) Description() string { return h.Attr(core.AttrDescription) }

// ContentType returns the payload content type attribute.
func (h *Header) ContentType() string { return h.Attr(core.AttrContentType) }

// Locale returns the BCP 47 collation locale attribute.
func (h *Header) Locale() string { return h.Attr(core.AttrLocale) }

// Layout returns the container layout attribute, core.LayoutStream when
// the builder did not record one.
func (h *Header) Layout() string {
	if v := h.Attr(core.AttrLayout); v != "" {
		return v
	}
	return core.LayoutStream
}

// CaseSensitive reports whether keys were ordered without case folding.
func (h *Header) CaseSensitive() bool {
	return h.Attr(core.AttrCaseSensitive) == "true"
}

// StripKey reports whether keys were stripped to letters and digits
// before ordering.
func (h *Header) StripKey() bool {
	return h.Attr(core.AttrStripKey) == "true"
}

// Append serializes the header to dst and returns the extended slice.
func (h *Header) Append(dst []byte) []byte {
	start := len(dst)
	meta := h.metadataText()

	dst = binary.BigEndian.AppendUint32(dst, core.ContainerMagic)
	dst = append(dst, h.Version)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(meta)))
	dst = append(dst, meta...)

	dst = append(dst, byte(h.DefaultCompression), byte(h.DefaultEncryption))
	dst = binary.BigEndian.AppendUint64(dst, h.EntryCount)
	dst = binary.BigEndian.AppendUint32(dst, h.KeyBlockCount)
	dst = binary.BigEndian.AppendUint32(dst, h.RecordBlockCount)
	for _, s := range []Section{h.KeySummaries, h.KeyBlocks, h.RecordSummaries, h.RecordBlocks} {
		dst = binary.BigEndian.AppendUint64(dst, s.Offset)
		dst = binary.BigEndian.AppendUint64(dst, s.Length)
	}
	dst = binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:]))
	return dst
}

// ParseHeader decodes a complete header from data and validates it against
// the file size. data must hold at least the full header; use
// HeaderSizeFor with the metadata length at offset 5 to size the read.
func ParseHeader(data []byte, fileSize int64) (*Header, error) {
	if len(data) < headerPreludeSize {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("file of %d bytes is too short for a header", len(data))}
	}
	if magic := binary.BigEndian.Uint32(data[0:4]); magic != core.ContainerMagic {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("bad magic 0x%08x", magic)}
	}
	version := data[4]
	if version != core.FormatVersion {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("unsupported format version %d", version)}
	}
	metaLen := binary.BigEndian.Uint32(data[5:9])
	if metaLen > maxHeaderMetadata {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("metadata length %d exceeds limit", metaLen)}
	}
	total := HeaderSizeFor(metaLen)
	if len(data) < total {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("header needs %d bytes, have %d", total, len(data))}
	}
	if int64(total) > fileSize {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("header of %d bytes exceeds file size %d", total, fileSize)}
	}

	stored := binary.BigEndian.Uint32(data[total-core.ChecksumSize : total])
	if got := crc32.ChecksumIEEE(data[:total-core.ChecksumSize]); got != stored {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("header checksum 0x%08x, stored 0x%08x", got, stored)}
	}

	attrs, err := parseAttributes(data[headerPreludeSize : headerPreludeSize+int(metaLen)])
	if err != nil {
		return nil, &core.CorruptHeaderError{Reason: err.Error()}
	}

	h := &Header{Version: version, Attributes: attrs}
	p := headerPreludeSize + int(metaLen)
	h.DefaultCompression = core.CompressionType(data[p])
	h.DefaultEncryption = core.EncryptionType(data[p+1])
	h.EntryCount = binary.BigEndian.Uint64(data[p+2 : p+10])
	h.KeyBlockCount = binary.BigEndian.Uint32(data[p+10 : p+14])
	h.RecordBlockCount = binary.BigEndian.Uint32(data[p+14 : p+18])
	p += 18
	for _, s := range []*Section{&h.KeySummaries, &h.KeyBlocks, &h.RecordSummaries, &h.RecordBlocks} {
		s.Offset = binary.BigEndian.Uint64(data[p : p+8])
		s.Length = binary.BigEndian.Uint64(data[p+8 : p+16])
		p += 16
	}

	if err := h.validate(total, fileSize); err != nil {
		return nil, err
	}
	return h, nil
}

func parseAttributes(meta []byte) (map[string]string, error) {
	if !utf8.Valid(meta) {
		return nil, fmt.Errorf("metadata is not valid UTF-8")
	}
	attrs := make(map[string]string)
	for _, line := range strings.Split(string(meta), "\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed metadata line %q", line)
		}
		attrs[name] = value
	}
	return attrs, nil
}

// validate enforces the header's internal consistency: sections are in
// order, non-overlapping, inside the file, and the counts agree with the
// entry count.
func (h *Header) validate(headerSize int, fileSize int64) error {
	sections := []struct {
		name string
		s    Section
	}{
		{"key summaries", h.KeySummaries},
		{"key blocks", h.KeyBlocks},
		{"record summaries", h.RecordSummaries},
		{"record blocks", h.RecordBlocks},
	}
	prevEnd := uint64(headerSize)
	for _, sec := range sections {
		if sec.s.Offset < prevEnd {
			return &core.CorruptHeaderError{Reason: fmt.Sprintf("%s section at %d overlaps preceding data ending at %d", sec.name, sec.s.Offset, prevEnd)}
		}
		if sec.s.end() < sec.s.Offset {
			return &core.CorruptHeaderError{Reason: fmt.Sprintf("%s section length overflows", sec.name)}
		}
		if sec.s.end() > uint64(fileSize) {
			return &core.CorruptHeaderError{Reason: fmt.Sprintf("%s section ends at %d past file size %d", sec.name, sec.s.end(), fileSize)}
		}
		prevEnd = sec.s.end()
	}
	if h.EntryCount == 0 && (h.KeyBlockCount != 0 || h.RecordBlockCount != 0) {
		return &core.CorruptHeaderError{Reason: "empty container declares blocks"}
	}
	if h.EntryCount > 0 && (h.KeyBlockCount == 0 || h.RecordBlockCount == 0) {
		return &core.CorruptHeaderError{Reason: fmt.Sprintf("%d entries but %d key blocks and %d record blocks", h.EntryCount, h.KeyBlockCount, h.RecordBlockCount)}
	}
	if h.KeyBlockCount == 0 && (h.KeySummaries.Length != 0 || h.KeyBlocks.Length != 0) {
		return &core.CorruptHeaderError{Reason: "zero key blocks but non-empty key sections"}
	}
	if h.RecordBlockCount == 0 && (h.RecordSummaries.Length != 0 || h.RecordBlocks.Length != 0) {
		return &core.CorruptHeaderError{Reason: "zero record blocks but non-empty record sections"}
	}
	return nil
}
