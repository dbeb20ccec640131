// Package container implements the dictionary container format: the
// header, the two-level key index, the record index, the block codec, the
// reader, the two builder variants and the converter.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/INLOpen/dictbase/cache"
	"github.com/INLOpen/dictbase/collate"
	"github.com/INLOpen/dictbase/core"
)

// LinkPrefix marks a payload that redirects to another key. The target is
// the remainder of the first line.
const LinkPrefix = "@@@LINK="

// readerIDs hands out cache namespace ids so readers sharing one cache
// never collide.
var readerIDs atomic.Uint64

// ReaderOptions configures an open container.
type ReaderOptions struct {
	// Comparator overrides the comparator derived from the header's
	// collation attributes.
	Comparator collate.Comparator
	// Secret is the container secret for encrypted blocks.
	Secret []byte
	// Cache is an optional shared decoded-block cache. Without one every
	// access decodes from the source.
	Cache *cache.BlockCache
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Reader is an open dictionary container. It is safe for concurrent use:
// the header and both indexes are immutable after NewReader returns, and
// block decoding goes through the cache's coalescing path.
type Reader struct {
	src     io.ReaderAt
	size    int64
	header  *Header
	keys    *KeyIndex
	records *RecordIndex
	cmp     collate.Comparator
	secret  []byte
	cache   *cache.BlockCache
	id      uint64
	logger  *slog.Logger
	closed  atomic.Bool
	closer  io.Closer
}

// NewReader opens a container from a byte-range source. It reads and
// validates the header and both summary sections; blocks are decoded
// lazily.
func NewReader(src io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "container-reader")

	header, err := readHeader(src, size)
	if err != nil {
		return nil, err
	}

	cmp := opts.Comparator
	if cmp == nil {
		cmp, err = collate.ForAttributes(header.Locale(), header.CaseSensitive(), header.StripKey())
		if err != nil {
			return nil, fmt.Errorf("comparator for locale %q: %w", header.Locale(), err)
		}
	}

	r := &Reader{
		src:    src,
		size:   size,
		header: header,
		cmp:    cmp,
		secret: append([]byte(nil), opts.Secret...),
		cache:  opts.Cache,
		id:     readerIDs.Add(1),
		logger: logger,
	}

	keySummaries, err := r.readSection(header.KeySummaries)
	if err != nil {
		return nil, err
	}
	r.keys, err = parseKeyIndex(keySummaries, cmp, header)
	if err != nil {
		return nil, err
	}

	recordSummaries, err := r.readSection(header.RecordSummaries)
	if err != nil {
		return nil, err
	}
	r.records, err = parseRecordIndex(recordSummaries, header)
	if err != nil {
		return nil, err
	}

	logger.Debug("container opened",
		"entries", header.EntryCount,
		"key_blocks", header.KeyBlockCount,
		"record_blocks", header.RecordBlockCount,
		"layout", header.Layout())
	return r, nil
}

// OpenFile opens a container file. Close releases the file handle.
func OpenFile(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat container %s: %w", path, err)
	}
	r, err := NewReader(f, st.Size(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// readHeader reads the variable-length header from the start of the
// source.
func readHeader(src io.ReaderAt, size int64) (*Header, error) {
	var prelude [headerPreludeSize]byte
	if size < int64(len(prelude)) {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("file of %d bytes is too short for a header", size)}
	}
	if _, err := src.ReadAt(prelude[:], 0); err != nil {
		return nil, fmt.Errorf("read container header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(prelude[0:4]); magic != core.ContainerMagic {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("bad magic 0x%08x", magic)}
	}
	metaLen := binary.BigEndian.Uint32(prelude[5:9])
	if metaLen > maxHeaderMetadata {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("metadata length %d exceeds limit", metaLen)}
	}
	total := HeaderSizeFor(metaLen)
	if int64(total) > size {
		return nil, &core.CorruptHeaderError{Reason: fmt.Sprintf("header of %d bytes exceeds file size %d", total, size)}
	}
	buf := make([]byte, total)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read container header: %w", err)
	}
	return ParseHeader(buf, size)
}

// readSection reads a whole raw section. Bounds were validated against
// the file size when the header parsed.
func (r *Reader) readSection(s Section) ([]byte, error) {
	buf := make([]byte, s.Length)
	if s.Length == 0 {
		return buf, nil
	}
	if _, err := r.src.ReadAt(buf, int64(s.Offset)); err != nil {
		return nil, fmt.Errorf("read section at %d: %w", s.Offset, err)
	}
	return buf, nil
}

// Header returns the parsed container header. The caller must not mutate
// it.
func (r *Reader) Header() *Header { return r.header }

// Len returns the number of entries in the container.
func (r *Reader) Len() uint64 { return r.header.EntryCount }

// Comparator returns the comparator ordering this container's keys.
func (r *Reader) Comparator() collate.Comparator { return r.cmp }

// Close releases the reader. Concurrent operations in flight may still
// finish; new operations fail with ErrClosed.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.cache != nil {
		r.cache.EvictContainer(r.id)
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) checkOpen() error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	return nil
}

// decodeBlockAt reads and decodes the block at the given section-relative
// offset, cross-checking the summary's lengths and checksum against the
// block's own header.
func (r *Reader) decodeBlockAt(kind core.BlockKind, index int, section Section, offset uint64, compressedLen, decompressedLen, checksum uint32) (*core.DecodedBlock, error) {
	decode := func() (*core.DecodedBlock, error) {
		diskLen := uint64(core.BlockHeaderSize) + uint64(compressedLen)
		if offset+diskLen > section.Length {
			return nil, fmt.Errorf("%v block %d at %d+%d exceeds its section of %d bytes: %w",
				kind, index, offset, diskLen, section.Length, core.ErrCorrupted)
		}
		raw := make([]byte, diskLen)
		if _, err := r.src.ReadAt(raw, int64(section.Offset+offset)); err != nil {
			return nil, fmt.Errorf("read %v block %d: %w", kind, index, err)
		}
		hdr, err := parseBlockHeader(raw)
		if err != nil {
			return nil, err
		}
		if hdr.compressedLen != compressedLen || hdr.decompressedLen != decompressedLen || hdr.checksum != checksum {
			return nil, fmt.Errorf("%v block %d header disagrees with its summary: %w", kind, index, core.ErrCorrupted)
		}
		payload, err := decodeBlock(raw, r.secret)
		if err != nil {
			return nil, fmt.Errorf("%v block %d: %w", kind, index, err)
		}
		return &core.DecodedBlock{Kind: kind, Index: index, Data: payload}, nil
	}

	if r.cache == nil {
		return decode()
	}
	return r.cache.GetOrDecode(cache.Key{ContainerID: r.id, Kind: kind, Index: index}, decode)
}

// keyBlockEntries loads and decodes the entries of key block b.
func (r *Reader) keyBlockEntries(b int) ([]KeyEntry, error) {
	s := r.keys.Summary(b)
	block, err := r.decodeBlockAt(core.KeyBlock, b, r.header.KeyBlocks, s.offset, s.CompressedLen, s.DecompressedLen, s.Checksum)
	if err != nil {
		return nil, err
	}
	return decodeKeyEntries(block.Data, s.EntryCount)
}

// recordBlock loads and decodes record block b.
func (r *Reader) recordBlock(b int) (*core.DecodedBlock, error) {
	s := r.records.Summary(b)
	return r.decodeBlockAt(core.RecordBlock, b, r.header.RecordBlocks, s.offset, s.CompressedLen, s.DecompressedLen, s.Checksum)
}

// readRecordRange copies length bytes starting at the logical offset in
// the decompressed record stream. A payload may span record blocks.
func (r *Reader) readRecordRange(logical, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if logical+length > r.records.TotalLength() {
		return nil, fmt.Errorf("payload range %d+%d exceeds record stream of %d bytes: %w",
			logical, length, r.records.TotalLength(), core.ErrCorrupted)
	}
	b, within, err := r.records.Locate(logical)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, length)
	for uint64(len(out)) < length {
		block, err := r.recordBlock(b)
		if err != nil {
			return nil, err
		}
		data := block.Data[within:]
		if need := length - uint64(len(out)); uint64(len(data)) > need {
			data = data[:need]
		}
		out = append(out, data...)
		within = 0
		b++
	}
	return out, nil
}

// entryPayload returns the payload of the entry at pos. The payload
// length is the distance to the next entry's logical offset, or to the
// end of the record stream for the last entry.
func (r *Reader) entryPayload(pos position, entries []KeyEntry) ([]byte, error) {
	start := entries[pos.entry].RecordOffset
	var end uint64
	switch {
	case pos.entry+1 < len(entries):
		end = entries[pos.entry+1].RecordOffset
	case pos.block+1 < r.keys.Blocks():
		next, err := r.keyBlockEntries(pos.block + 1)
		if err != nil {
			return nil, err
		}
		end = next[0].RecordOffset
	default:
		end = r.records.TotalLength()
	}
	if end < start {
		return nil, fmt.Errorf("entry %q at offset %d precedes its predecessor at %d: %w",
			entries[pos.entry].Key, end, start, core.ErrCorrupted)
	}
	return r.readRecordRange(start, end-start)
}

// GetRaw returns the stored payload for key without resolving links.
// Duplicate keys return the first entry in collation order.
func (r *Reader) GetRaw(key string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	pos, found, err := r.findKey(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("key %q: %w", key, core.ErrNotFound)
	}
	entries, err := r.keyBlockEntries(pos.block)
	if err != nil {
		return nil, err
	}
	return r.entryPayload(pos, entries)
}

func (r *Reader) findKey(key string) (position, bool, error) {
	return r.keys.findFirst(key, r.keyBlockEntries)
}

// Get returns the payload for key, resolving link entries transitively.
// A payload whose first line is "@@@LINK=<target>" redirects to target;
// cycles fail with ErrLinkCycle.
func (r *Reader) Get(key string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	visited := map[string]struct{}{key: {}}
	cur := key
	for {
		payload, err := r.GetRaw(cur)
		if err != nil {
			return nil, err
		}
		target, ok := linkTarget(payload)
		if !ok {
			return payload, nil
		}
		if _, seen := visited[target]; seen {
			return nil, fmt.Errorf("resolving %q via %q: %w", key, target, core.ErrLinkCycle)
		}
		visited[target] = struct{}{}
		cur = target
	}
}

// linkTarget extracts the redirect target from a link payload.
func linkTarget(payload []byte) (string, bool) {
	if len(payload) < len(LinkPrefix) || string(payload[:len(LinkPrefix)]) != LinkPrefix {
		return "", false
	}
	rest := string(payload[len(LinkPrefix):])
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// EntryAt returns the nth entry in collation order.
func (r *Reader) EntryAt(n uint64) (string, []byte, error) {
	if err := r.checkOpen(); err != nil {
		return "", nil, err
	}
	b, within, err := r.keys.blockForEntry(n)
	if err != nil {
		return "", nil, err
	}
	entries, err := r.keyBlockEntries(b)
	if err != nil {
		return "", nil, err
	}
	pos := position{block: b, entry: int(within)}
	payload, err := r.entryPayload(pos, entries)
	if err != nil {
		return "", nil, err
	}
	return entries[pos.entry].Key, payload, nil
}

// Fuzzy returns keys within maxDistance edits of pattern, ordered by
// ascending distance then collation order, capped at 128 results.
func (r *Reader) Fuzzy(pattern string, maxDistance int) ([]FuzzyMatch, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	return r.keys.fuzzy(pattern, maxDistance, r.keyBlockEntries)
}

// Entries returns an iterator over every entry in collation order.
func (r *Reader) Entries() *Iterator {
	return &Iterator{r: r}
}

// Prefix returns an iterator over the entries whose keys begin with
// prefix under the container's collation. limit <= 0 means unbounded.
func (r *Reader) Prefix(prefix string, limit int) (*Iterator, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	pos, _, err := r.findKey(prefix)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		r:      r,
		pos:    pos,
		prefix: prefix,
		limit:  limit,
	}, nil
}
