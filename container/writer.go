package container

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/INLOpen/dictbase/collate"
	"github.com/INLOpen/dictbase/core"
)

// Default block thresholds: a block is closed once its decompressed
// payload reaches the threshold.
const (
	DefaultKeyBlockSize    = 16 * 1024
	DefaultRecordBlockSize = 64 * 1024
)

// maxRecordBlockBytes caps the decompressed size of one record block.
// A variable so tests can exercise the overflow handling at small sizes.
var maxRecordBlockBytes uint64 = core.MaxBlockLength

// BuilderOptions configures both builder variants and the converter.
type BuilderOptions struct {
	// Compression and Encryption are the uniform kinds written for every
	// block.
	Compression core.CompressionType
	Encryption  core.EncryptionType
	// Secret is required when Encryption is not EncryptionNone.
	Secret []byte
	// Comparator overrides the comparator derived from Attributes.
	Comparator collate.Comparator
	// KeyBlockSize and RecordBlockSize are decompressed-byte thresholds
	// at which a block is closed. Zero means the default.
	KeyBlockSize    int
	RecordBlockSize int
	// Attributes become the header metadata: Title, Description,
	// ContentType, Locale, CaseSensitive, StripKey and so on.
	Attributes map[string]string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o BuilderOptions) keyBlockSize() int {
	if o.KeyBlockSize > 0 {
		return o.KeyBlockSize
	}
	return DefaultKeyBlockSize
}

func (o BuilderOptions) recordBlockSize() int {
	if o.RecordBlockSize > 0 {
		return o.RecordBlockSize
	}
	return DefaultRecordBlockSize
}

// comparator resolves the effective comparator for the options.
func (o BuilderOptions) comparator() (collate.Comparator, error) {
	if o.Comparator != nil {
		return o.Comparator, nil
	}
	attrs := o.Attributes
	return collate.ForAttributes(attrs[core.AttrLocale],
		attrs[core.AttrCaseSensitive] == "true",
		attrs[core.AttrStripKey] == "true")
}

func (o BuilderOptions) validate() error {
	switch o.Compression {
	case core.CompressionNone, core.CompressionSnappy, core.CompressionLZ4, core.CompressionZSTD:
	default:
		return fmt.Errorf("compression kind %d: %w", o.Compression, core.ErrUnsupportedCodec)
	}
	switch o.Encryption {
	case core.EncryptionNone:
	case core.EncryptionShuffle, core.EncryptionSalsa20:
		if len(o.Secret) == 0 {
			return fmt.Errorf("encryption %v requires a secret", o.Encryption)
		}
	default:
		return fmt.Errorf("encryption kind %d: %w", o.Encryption, core.ErrUnsupportedCodec)
	}
	// The header metadata is line-oriented key=value text, so names and
	// values that would break that framing are rejected up front rather
	// than producing a file that cannot be reopened.
	for name, value := range o.Attributes {
		if name == "" || strings.ContainsAny(name, "=\n\r") {
			return fmt.Errorf("attribute name %q: %w", name, core.ErrInvalidAttribute)
		}
		if strings.ContainsAny(value, "\n\r") {
			return fmt.Errorf("attribute %q value contains a line break: %w", name, core.ErrInvalidAttribute)
		}
		if !utf8.ValidString(name) || !utf8.ValidString(value) {
			return fmt.Errorf("attribute %q is not valid UTF-8: %w", name, core.ErrInvalidAttribute)
		}
	}
	return nil
}

// headerAttributes merges the caller's attributes with the layout tag.
func (o BuilderOptions) headerAttributes(layout string) map[string]string {
	attrs := make(map[string]string, len(o.Attributes)+1)
	for k, v := range o.Attributes {
		attrs[k] = v
	}
	attrs[core.AttrLayout] = layout
	return attrs
}

// Builder writes a stream-layout container incrementally: entries arrive
// one at a time in collation order and blocks are encoded as their
// thresholds fill. Single producer; not safe for concurrent Add.
type Builder struct {
	opts   BuilderOptions
	cmp    collate.Comparator
	logger *slog.Logger

	keyBuf        []byte
	keyFirst      string
	keyEntryCount uint32

	recBuf      []byte
	recStart    uint64 // logical start offset of recBuf
	logicalSize uint64 // total decompressed record bytes so far

	keyBlocks    []*encodedBlock
	keySums      []KeyBlockSummary
	recordBlocks []*encodedBlock
	recordSums   []RecordBlockSummary

	lastKey    string
	entryCount uint64
	finished   bool
}

// NewBuilder creates a streaming builder.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	cmp, err := opts.comparator()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		opts:   opts,
		cmp:    cmp,
		logger: logger.With("component", "container-builder"),
	}, nil
}

// Add appends one entry. Keys must arrive in non-decreasing collation
// order; duplicates are kept in arrival order.
func (b *Builder) Add(key string, payload []byte) error {
	if b.finished {
		return fmt.Errorf("builder already finished: %w", core.ErrClosed)
	}
	if len(key) > math.MaxUint16 {
		return fmt.Errorf("key of %d bytes: %w", len(key), core.ErrPayloadTooLarge)
	}
	if uint64(len(payload)) > core.MaxBlockLength {
		return fmt.Errorf("payload of %d bytes: %w", len(payload), core.ErrPayloadTooLarge)
	}
	if b.entryCount > 0 && b.cmp.Compare(key, b.lastKey) < 0 {
		return fmt.Errorf("key %q sorts before %q: %w", key, b.lastKey, core.ErrOutOfOrderKey)
	}
	// A payload that fits on its own may still overflow the block range
	// combined with buffered records; close the pending block first.
	if len(b.recBuf) > 0 && uint64(len(b.recBuf))+uint64(len(payload)) > maxRecordBlockBytes {
		if err := b.flushRecordBlock(); err != nil {
			return err
		}
	}

	if len(b.keyBuf) == 0 {
		b.keyFirst = key
	}
	b.keyBuf = appendKeyEntry(b.keyBuf, key, b.logicalSize)
	b.keyEntryCount++

	b.recBuf = append(b.recBuf, payload...)
	b.logicalSize += uint64(len(payload))

	b.lastKey = key
	b.entryCount++

	// Record blocks close at entry boundaries only.
	if len(b.recBuf) >= b.opts.recordBlockSize() {
		if err := b.flushRecordBlock(); err != nil {
			return err
		}
	}
	if len(b.keyBuf) >= b.opts.keyBlockSize() {
		if err := b.flushKeyBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) flushKeyBlock() error {
	if len(b.keyBuf) == 0 {
		return nil
	}
	blk, err := encodeBlock(b.keyBuf, b.opts.Compression, b.opts.Encryption, b.opts.Secret)
	if err != nil {
		return err
	}
	b.keyBlocks = append(b.keyBlocks, blk)
	b.keySums = append(b.keySums, KeyBlockSummary{
		FirstKey:        b.keyFirst,
		EntryCount:      b.keyEntryCount,
		CompressedLen:   blk.compressedLen,
		DecompressedLen: blk.decompressedLen,
		Checksum:        blk.checksum,
	})
	b.keyBuf = nil
	b.keyEntryCount = 0
	return nil
}

func (b *Builder) flushRecordBlock() error {
	if len(b.recBuf) == 0 {
		return nil
	}
	blk, err := encodeBlock(b.recBuf, b.opts.Compression, b.opts.Encryption, b.opts.Secret)
	if err != nil {
		return err
	}
	b.recordBlocks = append(b.recordBlocks, blk)
	b.recordSums = append(b.recordSums, RecordBlockSummary{
		StartOffset:     b.recStart,
		CompressedLen:   blk.compressedLen,
		DecompressedLen: blk.decompressedLen,
		Checksum:        blk.checksum,
	})
	b.recStart += uint64(len(b.recBuf))
	b.recBuf = nil
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() uint64 { return b.entryCount }

// Finish flushes partial blocks and writes the complete container to w.
// The builder cannot be reused afterwards.
func (b *Builder) Finish(w io.Writer) error {
	if b.finished {
		return fmt.Errorf("builder already finished: %w", core.ErrClosed)
	}
	b.finished = true
	if err := b.flushRecordBlock(); err != nil {
		return err
	}
	if err := b.flushKeyBlock(); err != nil {
		return err
	}
	b.logger.Debug("container serialized",
		"entries", b.entryCount,
		"key_blocks", len(b.keyBlocks),
		"record_blocks", len(b.recordBlocks))
	return serializeContainer(w, b.opts, b.opts.headerAttributes(core.LayoutStream),
		b.entryCount, b.keySums, b.keyBlocks, b.recordSums, b.recordBlocks)
}

// WriteFile writes the container to path atomically: the data goes to a
// temporary file in the same directory which is fsynced and renamed into
// place, so a failed build never leaves a partial container behind.
func (b *Builder) WriteFile(path string) error {
	return writeFileAtomic(path, b.Finish)
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp container: %w", err)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync container: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close container: %w", err)
	}
	name := tmp.Name()
	tmp = nil
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename container into place: %w", err)
	}
	return nil
}

// serializeContainer lays out header, summary sections and block sections
// in file order and writes them to w.
func serializeContainer(w io.Writer, opts BuilderOptions, attrs map[string]string, entryCount uint64,
	keySums []KeyBlockSummary, keyBlocks []*encodedBlock,
	recordSums []RecordBlockSummary, recordBlocks []*encodedBlock) error {

	var keySumBytes []byte
	for i := range keySums {
		keySumBytes = keySums[i].appendTo(keySumBytes)
	}
	var recSumBytes []byte
	for i := range recordSums {
		recSumBytes = recordSums[i].appendTo(recSumBytes)
	}
	blockBytes := func(blocks []*encodedBlock) uint64 {
		var n uint64
		for _, blk := range blocks {
			n += blk.diskSize()
		}
		return n
	}

	h := &Header{
		Version:            core.FormatVersion,
		Attributes:         attrs,
		DefaultCompression: opts.Compression,
		DefaultEncryption:  opts.Encryption,
		EntryCount:         entryCount,
		KeyBlockCount:      uint32(len(keyBlocks)),
		RecordBlockCount:   uint32(len(recordBlocks)),
	}
	offset := uint64(h.EncodedSize())
	h.KeySummaries = Section{Offset: offset, Length: uint64(len(keySumBytes))}
	offset += h.KeySummaries.Length
	h.KeyBlocks = Section{Offset: offset, Length: blockBytes(keyBlocks)}
	offset += h.KeyBlocks.Length
	h.RecordSummaries = Section{Offset: offset, Length: uint64(len(recSumBytes))}
	offset += h.RecordSummaries.Length
	h.RecordBlocks = Section{Offset: offset, Length: blockBytes(recordBlocks)}

	if _, err := w.Write(h.Append(nil)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(keySumBytes); err != nil {
		return fmt.Errorf("write key summaries: %w", err)
	}
	for i, blk := range keyBlocks {
		if _, err := blk.writeTo(w); err != nil {
			return fmt.Errorf("write key block %d: %w", i, err)
		}
	}
	if _, err := w.Write(recSumBytes); err != nil {
		return fmt.Errorf("write record summaries: %w", err)
	}
	for i, blk := range recordBlocks {
		if _, err := blk.writeTo(w); err != nil {
			return fmt.Errorf("write record block %d: %w", i, err)
		}
	}
	return nil
}
