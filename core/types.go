package core

import (
	"bytes"
	"fmt"
	"io"
)

// CompressionType identifies the compression algorithm used for a block.
// The value is stored in the block header on disk so the reader knows how
// to decompress.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// EncryptionType identifies the encryption scheme used for a block.
// Like CompressionType it is stored per block, so a reader must handle a
// mix of schemes within one container even though the builders always
// write a single uniform scheme.
type EncryptionType byte

const (
	EncryptionNone    EncryptionType = 0
	EncryptionShuffle EncryptionType = 1
	EncryptionSalsa20 EncryptionType = 2
)

// BlockKind distinguishes key blocks from record blocks. It is part of the
// cache key so decoded blocks of both kinds can share one cache.
type BlockKind byte

const (
	KeyBlock    BlockKind = 0
	RecordBlock BlockKind = 1
)

// Compressor defines the interface for compression and decompression algorithms.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// Encryptor defines the interface for block payload encryption schemes.
// dst and src must be the same length; dst and src may alias for stream
// schemes but not for the shuffle scheme.
type Encryptor interface {
	Encrypt(dst, src []byte) error
	Decrypt(dst, src []byte) error
	// Type returns the EncryptionType identifier for this encryptor.
	Type() EncryptionType
}

// DecodedBlock is the decompressed, decrypted payload of one block.
// Once inserted into the block cache it is owned by the cache and must not
// be mutated; lookups receive a shared read-only view.
type DecodedBlock struct {
	Kind  BlockKind
	Index int
	Data  []byte
}

// Size returns the decoded byte size used for cache accounting.
func (b *DecodedBlock) Size() int64 {
	return int64(len(b.Data))
}

// String returns the string representation of the BlockKind.
func (bk BlockKind) String() string {
	switch bk {
	case KeyBlock:
		return "key"
	case RecordBlock:
		return "record"
	default:
		return "unknown"
	}
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a configuration string to a CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression type %q: %w", name, ErrUnsupportedCodec)
	}
}

// String returns the string representation of the EncryptionType.
func (et EncryptionType) String() string {
	switch et {
	case EncryptionNone:
		return "none"
	case EncryptionShuffle:
		return "shuffle"
	case EncryptionSalsa20:
		return "salsa20"
	default:
		return "unknown"
	}
}

// ParseEncryptionType maps a configuration string to an EncryptionType.
func ParseEncryptionType(name string) (EncryptionType, error) {
	switch name {
	case "", "none":
		return EncryptionNone, nil
	case "shuffle":
		return EncryptionShuffle, nil
	case "salsa20":
		return EncryptionSalsa20, nil
	default:
		return 0, fmt.Errorf("unknown encryption type %q: %w", name, ErrUnsupportedCodec)
	}
}
