package container

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/dictbase/core"
)

func TestConvert_RoundTrip(t *testing.T) {
	entries := testEntries()
	src := openContainer(t, buildContainer(t, entries, BuilderOptions{
		Compression: core.CompressionNone,
	}), ReaderOptions{})

	// Re-encode with a different codec pair.
	var buf bytes.Buffer
	err := Convert(context.Background(), src, BuilderOptions{
		Compression: core.CompressionZSTD,
		Encryption:  core.EncryptionSalsa20,
		Secret:      []byte("converted"),
	}, &buf)
	require.NoError(t, err)

	dst := openContainer(t, buf.Bytes(), ReaderOptions{Secret: []byte("converted")})
	assert.Equal(t, core.CompressionZSTD, dst.Header().DefaultCompression)
	assert.Equal(t, src.Len(), dst.Len())

	// Metadata carries over.
	assert.Equal(t, src.Header().Locale(), dst.Header().Locale())

	// And back again, comparing every entry with the original.
	backSrc := dst
	var back bytes.Buffer
	err = Convert(context.Background(), backSrc, BuilderOptions{
		Compression: core.CompressionNone,
	}, &back)
	require.NoError(t, err)

	final := openContainer(t, back.Bytes(), ReaderOptions{})
	require.Equal(t, uint64(len(entries)), final.Len())
	for i, e := range entries {
		key, payload, err := final.EntryAt(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, e.Key, key)
		assert.Equal(t, e.Payload, payload)
	}
}

func TestConvert_Cancellation(t *testing.T) {
	src := openContainer(t, buildContainer(t, testEntries(), BuilderOptions{}), ReaderOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := Convert(ctx, src, BuilderOptions{}, &buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestConvertFile_NoPartialFileOnFailure(t *testing.T) {
	src := openContainer(t, buildContainer(t, testEntries(), BuilderOptions{}), ReaderOptions{})
	dir := t.TempDir()
	path := filepath.Join(dir, "converted.zdct")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ConvertFile(ctx, src, BuilderOptions{}, path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "cancelled conversion must leave no file")

	// No stray temp files either.
	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestConvertFile_Success(t *testing.T) {
	entries := testEntries()
	src := openContainer(t, buildContainer(t, entries, BuilderOptions{}), ReaderOptions{})
	path := filepath.Join(t.TempDir(), "converted.zdct")

	require.NoError(t, ConvertFile(context.Background(), src, BuilderOptions{
		Compression: core.CompressionLZ4,
	}, path))

	r, err := OpenFile(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint64(len(entries)), r.Len())
	got, err := r.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, entries[0].Payload, got)
}

func TestBuilder_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "built.zdct")
	b, err := NewBuilder(BuilderOptions{Compression: core.CompressionSnappy})
	require.NoError(t, err)
	for _, e := range testEntries() {
		require.NoError(t, b.Add(e.Key, e.Payload))
	}
	require.NoError(t, b.WriteFile(path))

	r, err := OpenFile(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	got, err := r.Get("world")
	require.NoError(t, err)
	assert.Equal(t, []byte("the earth and all upon it"), got)
}
