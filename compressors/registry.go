package compressors

import (
	"fmt"

	"github.com/INLOpen/dictbase/core"
)

var (
	noneCompressor   = &NoCompressionCompressor{}
	snappyCompressor = &SnappyCompressor{}
	lz4Compressor    = &LZ4Compressor{}
	zstdCompressor   = NewZstdCompressor()
)

// Get returns the Compressor for a kind code read from a block header.
// The set of kinds is closed: adding an algorithm means adding a
// CompressionType constant and an implementation here, nothing else.
func Get(t core.CompressionType) (core.Compressor, error) {
	switch t {
	case core.CompressionNone:
		return noneCompressor, nil
	case core.CompressionSnappy:
		return snappyCompressor, nil
	case core.CompressionLZ4:
		return lz4Compressor, nil
	case core.CompressionZSTD:
		return zstdCompressor, nil
	default:
		return nil, fmt.Errorf("compression kind %d: %w", t, core.ErrUnsupportedCodec)
	}
}
