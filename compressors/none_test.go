package compressors

import (
	"bytes"
	"io"
	"testing"

	"github.com/INLOpen/dictbase/core"
)

func TestNoCompressionCompressor(t *testing.T) {
	compressor := &NoCompressionCompressor{}

	if compressor.Type() != core.CompressionNone {
		t.Errorf("Type() got = %v, want %v", compressor.Type(), core.CompressionNone)
	}

	data := []byte("uncompressed dictionary payload")

	compressed, err := compressor.Compress(data)
	if err != nil {
		t.Fatalf("Compress() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(compressed, data) {
		t.Errorf("Compress() should return data unchanged, got %q", compressed)
	}

	rc, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress() returned an unexpected error: %v", err)
	}
	defer rc.Close()

	decompressed, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read decompressed data: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Errorf("Decompressed data does not match original.\nOriginal: %q\nDecompressed: %q", data, decompressed)
	}

	var buf bytes.Buffer
	if err := compressor.CompressTo(&buf, data); err != nil {
		t.Fatalf("CompressTo() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("CompressTo() should write data unchanged")
	}
}
