package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/dictbase/compressors"
	"github.com/INLOpen/dictbase/core"
	"github.com/INLOpen/dictbase/encryptors"
)

// Every block on disk carries a fixed prefix (core.BlockHeaderSize bytes):
//
//	compressionKind   u8
//	encryptionKind    u8
//	checksum          u32  crc32 (IEEE) of the decompressed payload
//	compressedLength  u32  length of the body that follows
//	decompressedLength u32
//
// The body is compress(payload) passed through the encryptor. The per-block
// encryption key is derived from the stored checksum and the container
// secret, so the checksum is computed on the plaintext before encryption
// and verified last on decode.

// encodedBlock is a block ready for serialization: wire header fields plus
// the compressed, encrypted body.
type encodedBlock struct {
	compression     core.CompressionType
	encryption      core.EncryptionType
	checksum        uint32
	compressedLen   uint32
	decompressedLen uint32
	body            []byte
}

// diskSize returns the number of bytes the block occupies on disk.
func (b *encodedBlock) diskSize() uint64 {
	return core.BlockHeaderSize + uint64(b.compressedLen)
}

func (b *encodedBlock) appendHeader(dst []byte) []byte {
	dst = append(dst, byte(b.compression), byte(b.encryption))
	dst = binary.BigEndian.AppendUint32(dst, b.checksum)
	dst = binary.BigEndian.AppendUint32(dst, b.compressedLen)
	dst = binary.BigEndian.AppendUint32(dst, b.decompressedLen)
	return dst
}

func (b *encodedBlock) writeTo(w io.Writer) (int64, error) {
	hdr := b.appendHeader(make([]byte, 0, core.BlockHeaderSize))
	if _, err := w.Write(hdr); err != nil {
		return 0, err
	}
	if _, err := w.Write(b.body); err != nil {
		return int64(len(hdr)), err
	}
	return int64(len(hdr)) + int64(len(b.body)), nil
}

// encodeBlock compresses and encrypts one block payload. A block the
// codec cannot shrink is stored uncompressed under the none kind; the
// reader honors kinds per block, so a mixed file stays readable.
func encodeBlock(payload []byte, comp core.CompressionType, enc core.EncryptionType, secret []byte) (*encodedBlock, error) {
	if uint64(len(payload)) > core.MaxBlockLength {
		return nil, fmt.Errorf("block payload of %d bytes: %w", len(payload), core.ErrPayloadTooLarge)
	}
	checksum := crc32.ChecksumIEEE(payload)

	compressor, err := compressors.Get(comp)
	if err != nil {
		return nil, err
	}
	compressed, err := compressor.Compress(payload)
	switch {
	case errors.Is(err, compressors.ErrIncompressible):
		comp, compressed = core.CompressionNone, payload
	case err != nil:
		return nil, fmt.Errorf("compress block: %w", err)
	case len(compressed) >= len(payload) && comp != core.CompressionNone:
		comp, compressed = core.CompressionNone, payload
	}
	if uint64(len(compressed)) > core.MaxBlockLength {
		return nil, fmt.Errorf("compressed block of %d bytes: %w", len(compressed), core.ErrPayloadTooLarge)
	}

	body := compressed
	if enc != core.EncryptionNone {
		encryptor, err := encryptors.Get(enc, encryptors.DeriveBlockKey(secret, checksum))
		if err != nil {
			return nil, err
		}
		// The shuffle scheme forbids aliased dst/src.
		body = make([]byte, len(compressed))
		if err := encryptor.Encrypt(body, compressed); err != nil {
			return nil, fmt.Errorf("encrypt block: %w", err)
		}
	}

	return &encodedBlock{
		compression:     comp,
		encryption:      enc,
		checksum:        checksum,
		compressedLen:   uint32(len(body)),
		decompressedLen: uint32(len(payload)),
		body:            body,
	}, nil
}

// blockHeader is the parsed fixed prefix of a block on disk.
type blockHeader struct {
	compression     core.CompressionType
	encryption      core.EncryptionType
	checksum        uint32
	compressedLen   uint32
	decompressedLen uint32
}

func parseBlockHeader(raw []byte) (blockHeader, error) {
	if len(raw) < core.BlockHeaderSize {
		return blockHeader{}, fmt.Errorf("block of %d bytes is shorter than its header: %w", len(raw), core.ErrCorrupted)
	}
	return blockHeader{
		compression:     core.CompressionType(raw[0]),
		encryption:      core.EncryptionType(raw[1]),
		checksum:        binary.BigEndian.Uint32(raw[2:6]),
		compressedLen:   binary.BigEndian.Uint32(raw[6:10]),
		decompressedLen: binary.BigEndian.Uint32(raw[10:14]),
	}, nil
}

// decodeBlock reverses encodeBlock: parse the wire header, decrypt,
// decompress, then verify the checksum of the recovered payload. raw must
// hold the complete block including its header.
func decodeBlock(raw []byte, secret []byte) ([]byte, error) {
	hdr, err := parseBlockHeader(raw)
	if err != nil {
		return nil, err
	}
	body := raw[core.BlockHeaderSize:]
	if uint32(len(body)) != hdr.compressedLen {
		return nil, fmt.Errorf("block body is %d bytes, header says %d: %w", len(body), hdr.compressedLen, core.ErrCorrupted)
	}

	if hdr.encryption != core.EncryptionNone {
		encryptor, err := encryptors.Get(hdr.encryption, encryptors.DeriveBlockKey(secret, hdr.checksum))
		if err != nil {
			return nil, err
		}
		plain := make([]byte, len(body))
		if err := encryptor.Decrypt(plain, body); err != nil {
			return nil, fmt.Errorf("decrypt block: %w", err)
		}
		body = plain
	}

	compressor, err := compressors.Get(hdr.compression)
	if err != nil {
		return nil, err
	}
	rc, err := compressor.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("decompress block: %w (%w)", err, core.ErrCorrupted)
	}
	defer rc.Close()
	payload := make([]byte, hdr.decompressedLen)
	if _, err := io.ReadFull(rc, payload); err != nil {
		return nil, fmt.Errorf("decompress block: %w (%w)", err, core.ErrCorrupted)
	}
	// Anything past the declared length means the lengths lied.
	var trailer [1]byte
	if n, _ := rc.Read(trailer[:]); n != 0 {
		return nil, fmt.Errorf("block decompressed past its declared %d bytes: %w", hdr.decompressedLen, core.ErrCorrupted)
	}

	if got := crc32.ChecksumIEEE(payload); got != hdr.checksum {
		return nil, fmt.Errorf("block checksum 0x%08x, stored 0x%08x: %w", got, hdr.checksum, core.ErrChecksumMismatch)
	}
	return payload, nil
}
