package core

// This file centralizes constants for the container file format: magic
// numbers, versions, and fixed field sizes shared by the reader and the
// builders.

const (
	// ContainerMagic identifies a dictionary container file. "ZDCT".
	ContainerMagic uint32 = 0x5A444354

	// FormatVersion is the current version for the container format.
	FormatVersion uint8 = 1
)

// All multi-byte integers in the container format are big-endian.
const (
	// ChecksumSize is the width of the CRC32 checksum fields.
	ChecksumSize = 4

	// BlockHeaderSize is the fixed prefix of every block on disk:
	// compressionKind (u8), encryptionKind (u8), checksum (u32),
	// compressedLength (u32), decompressedLength (u32).
	BlockHeaderSize = 1 + 1 + ChecksumSize + 4 + 4

	// MaxBlockLength is the largest representable compressed or
	// decompressed block length.
	MaxBlockLength = 1<<32 - 1
)

// Layout names persisted in the header's metadata attributes.
const (
	LayoutStream = "stream"
	LayoutFlat   = "flat"
)

// Well-known header attribute names.
const (
	AttrEncoding      = "Encoding"
	AttrCaseSensitive = "CaseSensitive"
	AttrStripKey      = "StripKey"
	AttrTitle         = "Title"
	AttrDescription   = "Description"
	AttrContentType   = "ContentType"
	AttrLocale        = "Locale"
	AttrLayout        = "Layout"
)
