package compressors

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/INLOpen/dictbase/core"
)

func TestGet_RoundTrip(t *testing.T) {
	kinds := []core.CompressionType{
		core.CompressionNone,
		core.CompressionSnappy,
		core.CompressionLZ4,
		core.CompressionZSTD,
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "simple string",
			data: []byte("world, n. the earth and all the people on it"),
		},
		{
			name: "repetitive data",
			data: bytes.Repeat([]byte("definition "), 512),
		},
		{
			name: "empty data",
			data: []byte{},
		},
	}

	for _, kind := range kinds {
		compressor, err := Get(kind)
		if err != nil {
			t.Fatalf("Get(%v) returned an unexpected error: %v", kind, err)
		}
		if compressor.Type() != kind {
			t.Errorf("Get(%v).Type() = %v, want %v", kind, compressor.Type(), kind)
		}

		for _, tc := range testCases {
			t.Run(kind.String()+"/"+tc.name, func(t *testing.T) {
				compressed, err := compressor.Compress(tc.data)
				if errors.Is(err, ErrIncompressible) {
					// The lz4 block format cannot represent input it
					// failed to shrink; the block writer stores it raw.
					return
				}
				if err != nil {
					t.Fatalf("Compress() returned an unexpected error: %v", err)
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
				if !bytes.Equal(tc.data, decompressed) {
					t.Errorf("round trip mismatch for %v", kind)
				}

				// CompressTo must produce output Decompress understands.
				var buf bytes.Buffer
				if err := compressor.CompressTo(&buf, tc.data); err != nil {
					if errors.Is(err, ErrIncompressible) {
						return
					}
					t.Fatalf("CompressTo() returned an unexpected error: %v", err)
				}
				rc2, err := compressor.Decompress(buf.Bytes())
				if err != nil {
					t.Fatalf("Decompress() after CompressTo() returned an unexpected error: %v", err)
				}
				defer rc2.Close()
				decompressed2, err := io.ReadAll(rc2)
				if err != nil {
					t.Fatalf("failed to read decompressed data after CompressTo: %v", err)
				}
				if !bytes.Equal(tc.data, decompressed2) {
					t.Errorf("CompressTo round trip mismatch for %v", kind)
				}
			})
		}
	}
}

func TestGet_UnknownKind(t *testing.T) {
	_, err := Get(core.CompressionType(99))
	if err == nil {
		t.Fatal("Get() with unknown kind should return an error")
	}
	if !errors.Is(err, core.ErrUnsupportedCodec) {
		t.Errorf("error should wrap ErrUnsupportedCodec, got %v", err)
	}
}
