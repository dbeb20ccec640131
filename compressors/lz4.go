package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/dictbase/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// maxLZ4DecompressSize bounds the retry growth in Decompress. Block
// decompressed lengths are u32 on disk, so anything beyond this is bogus.
const maxLZ4DecompressSize = 512 << 20

// ErrIncompressible is returned when a codec cannot shrink the input at
// all. The block writer stores such blocks uncompressed.
var ErrIncompressible = errors.New("input is not compressible")

// LZ4Compressor implements the Compressor interface using the LZ4 block
// format.
type LZ4Compressor struct{}

type lz4ReadCloser struct {
	*bytes.Reader
}

func (lrc *lz4ReadCloser) Close() error {
	return nil
}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLZ4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(data) > 0 {
		// The block API signals incompressible input with a zero length.
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	// The lz4 block format does not store the original size, so start with
	// a guess and grow on ErrInvalidSourceShortBuffer.
	if len(data) == 0 {
		return &lz4ReadCloser{Reader: bytes.NewReader(nil)}, nil
	}
	dstSize := len(data) * 3
	if dstSize < 1024 {
		dstSize = 1024
	}
	dst := make([]byte, dstSize)

	for {
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return &lz4ReadCloser{Reader: bytes.NewReader(dst[:n])}, nil
		}
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			if len(dst) > maxLZ4DecompressSize {
				return nil, fmt.Errorf("lz4 decompression buffer grew beyond %d bytes", maxLZ4DecompressSize)
			}
			dst = make([]byte, len(dst)*2)
			continue
		}
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}

// CompressTo compresses src into dst using the same block format as
// Compress.
func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	tempBuf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, tempBuf, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return ErrIncompressible
	}
	dst.Write(tempBuf[:n])
	return nil
}
