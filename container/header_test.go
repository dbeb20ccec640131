package container

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/dictbase/core"
)

func TestHeader_AppendParseRoundTrip(t *testing.T) {
	h := &Header{
		Version: core.FormatVersion,
		Attributes: map[string]string{
			core.AttrTitle:       "Test Dictionary",
			core.AttrDescription: "a fixture",
			core.AttrContentType: "text/plain",
			core.AttrLocale:      "de",
			core.AttrLayout:      core.LayoutFlat,
		},
		DefaultCompression: core.CompressionZSTD,
		DefaultEncryption:  core.EncryptionSalsa20,
		EntryCount:         42,
		KeyBlockCount:      3,
		RecordBlockCount:   5,
	}
	size := uint64(h.EncodedSize())
	h.KeySummaries = Section{Offset: size, Length: 100}
	h.KeyBlocks = Section{Offset: size + 100, Length: 200}
	h.RecordSummaries = Section{Offset: size + 300, Length: 100}
	h.RecordBlocks = Section{Offset: size + 400, Length: 600}

	wire := h.Append(nil)
	require.Len(t, wire, h.EncodedSize())

	parsed, err := ParseHeader(wire, int64(size+1000))
	require.NoError(t, err)
	assert.Equal(t, h.Attributes, parsed.Attributes)
	assert.Equal(t, h.DefaultCompression, parsed.DefaultCompression)
	assert.Equal(t, h.DefaultEncryption, parsed.DefaultEncryption)
	assert.Equal(t, h.EntryCount, parsed.EntryCount)
	assert.Equal(t, h.KeyBlockCount, parsed.KeyBlockCount)
	assert.Equal(t, h.RecordBlockCount, parsed.RecordBlockCount)
	assert.Equal(t, h.RecordBlocks, parsed.RecordBlocks)

	assert.Equal(t, "Test Dictionary", parsed.Title())
	assert.Equal(t, "de", parsed.Locale())
	assert.Equal(t, core.LayoutFlat, parsed.Layout())
}

func TestParseHeader_Corruption(t *testing.T) {
	data := buildContainer(t, testEntries(), BuilderOptions{})

	corrupt := func(mutate func([]byte)) error {
		c := append([]byte(nil), data...)
		mutate(c)
		_, err := NewReader(bytes.NewReader(c), int64(len(c)), ReaderOptions{})
		return err
	}

	t.Run("bad magic", func(t *testing.T) {
		err := corrupt(func(c []byte) { c[0] = 'X' })
		require.Error(t, err)
		var che *core.CorruptHeaderError
		assert.ErrorAs(t, err, &che)
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})

	t.Run("bad header checksum", func(t *testing.T) {
		// Flip a byte inside the metadata text.
		err := corrupt(func(c []byte) { c[headerPreludeSize] ^= 0x01 })
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})

	t.Run("truncated file", func(t *testing.T) {
		c := data[:8]
		_, err := NewReader(bytes.NewReader(c), int64(len(c)), ReaderOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})

	t.Run("section past EOF", func(t *testing.T) {
		c := data[:len(data)-1]
		_, err := NewReader(bytes.NewReader(c), int64(len(c)), ReaderOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})
}

func TestHeader_CollationAttributesDriveComparator(t *testing.T) {
	entries := []Entry{
		{Key: "Apple", Payload: []byte("1")},
		{Key: "BANANA", Payload: []byte("2")},
		{Key: "cherry", Payload: []byte("3")},
	}
	data := buildContainer(t, entries, BuilderOptions{
		Attributes: map[string]string{core.AttrStripKey: "true"},
	})
	r := openContainer(t, data, ReaderOptions{})

	require.False(t, r.Header().CaseSensitive())
	require.True(t, r.Header().StripKey())

	// Case folding and stripping come from the header, not from any
	// reader-side configuration.
	got, err := r.Get("banana")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
	got, err = r.Get("ap-ple")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}
