package container

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/dictbase/collate"
	"github.com/INLOpen/dictbase/core"
)

// Entry is one key/payload pair for the flat builder.
type Entry struct {
	Key     string
	Payload []byte
}

// FlatBuilder writes a flat-layout container. Unlike the streaming
// Builder it needs the complete sorted entry set up front, which lets it
// encode all blocks in parallel before a single serialization pass.
type FlatBuilder struct {
	opts   BuilderOptions
	cmp    collate.Comparator
	logger *slog.Logger
}

// NewFlatBuilder creates a flat builder.
func NewFlatBuilder(opts BuilderOptions) (*FlatBuilder, error) {
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
	return &FlatBuilder{
		opts:   opts,
		cmp:    cmp,
		logger: logger.With("component", "container-flat-builder"),
	}, nil
}

// Add always fails: the flat layout is built from the complete entry set
// in one call to Build.
func (fb *FlatBuilder) Add(string, []byte) error {
	return core.ErrIncrementalAppend
}

// rawBlock is a packed but not yet encoded block payload.
type rawBlock struct {
	payload []byte

	// key blocks
	firstKey   string
	entryCount uint32

	// record blocks
	startOffset uint64
}

// Build validates, packs, encodes and serializes the entries to w.
// Entries must already be in non-decreasing collation order.
func (fb *FlatBuilder) Build(entries []Entry, w io.Writer) error {
	for i, e := range entries {
		if len(e.Key) > math.MaxUint16 {
			return fmt.Errorf("key of %d bytes: %w", len(e.Key), core.ErrPayloadTooLarge)
		}
		if uint64(len(e.Payload)) > core.MaxBlockLength {
			return fmt.Errorf("payload of %d bytes: %w", len(e.Payload), core.ErrPayloadTooLarge)
		}
		if i > 0 && fb.cmp.Compare(e.Key, entries[i-1].Key) < 0 {
			return fmt.Errorf("key %q sorts before %q: %w", e.Key, entries[i-1].Key, core.ErrOutOfOrderKey)
		}
	}

	keyRaw, recRaw := fb.pack(entries)

	keyBlocks := make([]*encodedBlock, len(keyRaw))
	recordBlocks := make([]*encodedBlock, len(recRaw))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range keyRaw {
		i := i
		g.Go(func() error {
			blk, err := encodeBlock(keyRaw[i].payload, fb.opts.Compression, fb.opts.Encryption, fb.opts.Secret)
			if err != nil {
				return fmt.Errorf("encode key block %d: %w", i, err)
			}
			keyBlocks[i] = blk
			return nil
		})
	}
	for i := range recRaw {
		i := i
		g.Go(func() error {
			blk, err := encodeBlock(recRaw[i].payload, fb.opts.Compression, fb.opts.Encryption, fb.opts.Secret)
			if err != nil {
				return fmt.Errorf("encode record block %d: %w", i, err)
			}
			recordBlocks[i] = blk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	keySums := make([]KeyBlockSummary, len(keyBlocks))
	for i, blk := range keyBlocks {
		keySums[i] = KeyBlockSummary{
			FirstKey:        keyRaw[i].firstKey,
			EntryCount:      keyRaw[i].entryCount,
			CompressedLen:   blk.compressedLen,
			DecompressedLen: blk.decompressedLen,
			Checksum:        blk.checksum,
		}
	}
	recordSums := make([]RecordBlockSummary, len(recordBlocks))
	for i, blk := range recordBlocks {
		recordSums[i] = RecordBlockSummary{
			StartOffset:     recRaw[i].startOffset,
			CompressedLen:   blk.compressedLen,
			DecompressedLen: blk.decompressedLen,
			Checksum:        blk.checksum,
		}
	}

	fb.logger.Debug("container serialized",
		"entries", len(entries),
		"key_blocks", len(keyBlocks),
		"record_blocks", len(recordBlocks))
	return serializeContainer(w, fb.opts, fb.opts.headerAttributes(core.LayoutFlat),
		uint64(len(entries)), keySums, keyBlocks, recordSums, recordBlocks)
}

// pack splits the entries into key and record block payloads at the
// configured thresholds. Blocks close at entry boundaries.
func (fb *FlatBuilder) pack(entries []Entry) (keyRaw, recRaw []rawBlock) {
	keySize := fb.opts.keyBlockSize()
	recSize := fb.opts.recordBlockSize()

	var (
		keyBuf   []byte
		keyFirst string
		keyCount uint32
		recBuf   []byte
		recStart uint64
		logical  uint64
	)
	flushKey := func() {
		if len(keyBuf) == 0 {
			return
		}
		keyRaw = append(keyRaw, rawBlock{payload: keyBuf, firstKey: keyFirst, entryCount: keyCount})
		keyBuf, keyCount = nil, 0
	}
	flushRec := func() {
		if len(recBuf) == 0 {
			return
		}
		recRaw = append(recRaw, rawBlock{payload: recBuf, startOffset: recStart})
		recStart += uint64(len(recBuf))
		recBuf = nil
	}

	for _, e := range entries {
		if len(keyBuf) == 0 {
			keyFirst = e.Key
		}
		keyBuf = appendKeyEntry(keyBuf, e.Key, logical)
		keyCount++
		recBuf = append(recBuf, e.Payload...)
		logical += uint64(len(e.Payload))

		if len(recBuf) >= recSize {
			flushRec()
		}
		if len(keyBuf) >= keySize {
			flushKey()
		}
	}
	flushRec()
	flushKey()
	return keyRaw, recRaw
}

// WriteFile builds the container at path atomically via a temp file and
// rename.
func (fb *FlatBuilder) WriteFile(entries []Entry, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return fb.Build(entries, w)
	})
}
