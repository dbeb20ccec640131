package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/dictbase/core"
	"github.com/golang/snappy"
)

// SnappyCompressor implements the Compressor interface using the snappy
// block format.
type SnappyCompressor struct{}

// snappyReadCloser wraps a bytes.Reader so decompressed in-memory data
// satisfies io.ReadCloser.
type snappyReadCloser struct {
	*bytes.Reader
}

// Close is a no-op; there are no external resources behind in-memory data.
func (src *snappyReadCloser) Close() error {
	return nil
}

var _ core.Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyReadCloser)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &snappyReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}

// CompressTo compresses src into dst. snappy.Encode produces the block
// format that Decompress expects; the streaming writer format would not.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Write(snappy.Encode(nil, src))
	return nil
}
