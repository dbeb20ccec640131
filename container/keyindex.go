package container

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/INLOpen/dictbase/collate"
	"github.com/INLOpen/dictbase/core"
)

// KeyEntry is one entry inside a decoded key block: the key text and the
// logical offset of its payload in the decompressed record stream.
type KeyEntry struct {
	Key          string
	RecordOffset uint64
}

// KeyBlockSummary is the sparse index entry for one key block. FirstKey is
// the raw (unfolded) first key of the block; the comparator applies its
// own normalization at search time.
type KeyBlockSummary struct {
	FirstKey        string
	EntryCount      uint32
	CompressedLen   uint32 // block body, excluding the block header
	DecompressedLen uint32
	Checksum        uint32

	// offset of the block within the key blocks section, and the number
	// of entries in all preceding blocks. Both are derived at parse time.
	offset     uint64
	cumEntries uint64
}

// KeyIndex is the two-level key lookup structure: the summary list is
// resident, the key blocks themselves are decoded on demand through the
// loader the reader supplies.
type KeyIndex struct {
	summaries []KeyBlockSummary
	cmp       collate.Comparator
	entries   uint64
}

// parseKeyIndex decodes the key summaries section and cross-checks it
// against the header's counts and the key blocks section length.
func parseKeyIndex(data []byte, cmp collate.Comparator, h *Header) (*KeyIndex, error) {
	idx := &KeyIndex{cmp: cmp}
	var blockOffset, cumEntries uint64
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated key block summary: %w", core.ErrCorrupted)
		}
		keyLen := int(binary.BigEndian.Uint16(data))
		if len(data) < 2+keyLen+16 {
			return nil, fmt.Errorf("truncated key block summary: %w", core.ErrCorrupted)
		}
		s := KeyBlockSummary{
			FirstKey:   string(data[2 : 2+keyLen]),
			offset:     blockOffset,
			cumEntries: cumEntries,
		}
		p := 2 + keyLen
		s.EntryCount = binary.BigEndian.Uint32(data[p : p+4])
		s.CompressedLen = binary.BigEndian.Uint32(data[p+4 : p+8])
		s.DecompressedLen = binary.BigEndian.Uint32(data[p+8 : p+12])
		s.Checksum = binary.BigEndian.Uint32(data[p+12 : p+16])
		data = data[p+16:]

		if s.EntryCount == 0 {
			return nil, fmt.Errorf("key block %d declares zero entries: %w", len(idx.summaries), core.ErrCorrupted)
		}
		if n := len(idx.summaries); n > 0 {
			prev := idx.summaries[n-1].FirstKey
			if cmp.Compare(prev, s.FirstKey) > 0 {
				return nil, fmt.Errorf("key block %d first key %q sorts before block %d first key %q: %w",
					n, s.FirstKey, n-1, prev, core.ErrCorrupted)
			}
		}
		idx.summaries = append(idx.summaries, s)
		blockOffset += core.BlockHeaderSize + uint64(s.CompressedLen)
		cumEntries += uint64(s.EntryCount)
	}

	if uint32(len(idx.summaries)) != h.KeyBlockCount {
		return nil, fmt.Errorf("%d key block summaries, header says %d: %w", len(idx.summaries), h.KeyBlockCount, core.ErrCorrupted)
	}
	if blockOffset != h.KeyBlocks.Length {
		return nil, fmt.Errorf("key blocks sum to %d bytes, section is %d: %w", blockOffset, h.KeyBlocks.Length, core.ErrCorrupted)
	}
	if cumEntries != h.EntryCount {
		return nil, fmt.Errorf("key blocks hold %d entries, header says %d: %w", cumEntries, h.EntryCount, core.ErrCorrupted)
	}
	idx.entries = cumEntries
	return idx, nil
}

// decodeKeyEntries decodes the payload of one key block. Each entry is a
// u16 key length, the key bytes, and the u64 logical record offset.
func decodeKeyEntries(data []byte, expected uint32) ([]KeyEntry, error) {
	entries := make([]KeyEntry, 0, expected)
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated key entry: %w", core.ErrCorrupted)
		}
		keyLen := int(binary.BigEndian.Uint16(data))
		if len(data) < 2+keyLen+8 {
			return nil, fmt.Errorf("truncated key entry: %w", core.ErrCorrupted)
		}
		entries = append(entries, KeyEntry{
			Key:          string(data[2 : 2+keyLen]),
			RecordOffset: binary.BigEndian.Uint64(data[2+keyLen : 2+keyLen+8]),
		})
		data = data[2+keyLen+8:]
	}
	if uint32(len(entries)) != expected {
		return nil, fmt.Errorf("key block holds %d entries, summary says %d: %w", len(entries), expected, core.ErrCorrupted)
	}
	return entries, nil
}

// appendKeyEntry serializes one entry in the key block wire form.
func appendKeyEntry(dst []byte, key string, recordOffset uint64) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(key)))
	dst = append(dst, key...)
	dst = binary.BigEndian.AppendUint64(dst, recordOffset)
	return dst
}

func (s *KeyBlockSummary) appendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s.FirstKey)))
	dst = append(dst, s.FirstKey...)
	dst = binary.BigEndian.AppendUint32(dst, s.EntryCount)
	dst = binary.BigEndian.AppendUint32(dst, s.CompressedLen)
	dst = binary.BigEndian.AppendUint32(dst, s.DecompressedLen)
	dst = binary.BigEndian.AppendUint32(dst, s.Checksum)
	return dst
}

// Blocks returns the number of key blocks.
func (idx *KeyIndex) Blocks() int { return len(idx.summaries) }

// Entries returns the total entry count.
func (idx *KeyIndex) Entries() uint64 { return idx.entries }

// Summary returns the summary for block i.
func (idx *KeyIndex) Summary(i int) *KeyBlockSummary { return &idx.summaries[i] }

// blockFor returns the index of the block that would hold key: the last
// block whose first key does not sort after key. Returns 0 for a key
// before the first block so callers can still report a miss from block 0.
func (idx *KeyIndex) blockFor(key string) int {
	// First block whose FirstKey sorts strictly after key.
	n := sort.Search(len(idx.summaries), func(i int) bool {
		return idx.cmp.Compare(idx.summaries[i].FirstKey, key) > 0
	})
	if n == 0 {
		return 0
	}
	return n - 1
}

// blockForEntry returns the block holding global entry number n and the
// entry's index within that block.
func (idx *KeyIndex) blockForEntry(n uint64) (block int, within uint32, err error) {
	if n >= idx.entries {
		return 0, 0, fmt.Errorf("entry %d of %d: %w", n, idx.entries, core.ErrNotFound)
	}
	// First block starting past n, minus one.
	b := sort.Search(len(idx.summaries), func(i int) bool {
		return idx.summaries[i].cumEntries > n
	}) - 1
	return b, uint32(n - idx.summaries[b].cumEntries), nil
}

// blockLoader resolves a key block index to its decoded entries. The
// reader supplies one backed by the block cache.
type blockLoader func(block int) ([]KeyEntry, error)

// position is a cursor into the key index: a block number and an entry
// index within it.
type position struct {
	block int
	entry int
}

// globalIndex converts the position to a global entry number.
func (idx *KeyIndex) globalIndex(pos position) uint64 {
	return idx.summaries[pos.block].cumEntries + uint64(pos.entry)
}

// findFirst locates the first entry whose key compares >= key and reports
// whether that entry compares equal. The returned position is
// (Blocks(), 0) when every entry sorts before key.
func (idx *KeyIndex) findFirst(key string, load blockLoader) (position, bool, error) {
	if len(idx.summaries) == 0 {
		return position{}, false, nil
	}
	// Candidate block: the one before the first block whose first key
	// sorts >= key. Its first key sorts strictly before key, so every
	// earlier block holds only smaller entries. A run of duplicates
	// spanning many whole blocks still begins either inside this block or
	// at the start of the next one.
	b := sort.Search(len(idx.summaries), func(i int) bool {
		return idx.cmp.Compare(idx.summaries[i].FirstKey, key) >= 0
	})
	if b > 0 {
		b--
	}
	entries, err := load(b)
	if err != nil {
		return position{}, false, err
	}
	i := sort.Search(len(entries), func(i int) bool {
		return idx.cmp.Compare(entries[i].Key, key) >= 0
	})
	if i == len(entries) {
		// Every entry in the candidate block sorts before key: the target
		// is the start of the next block, if any.
		if b+1 >= len(idx.summaries) {
			return position{block: len(idx.summaries)}, false, nil
		}
		next := idx.summaries[b+1].FirstKey
		return position{block: b + 1}, idx.cmp.Compare(next, key) == 0, nil
	}
	return position{block: b, entry: i}, idx.cmp.Compare(entries[i].Key, key) == 0, nil
}

// FuzzyMatch is one fuzzy lookup result.
type FuzzyMatch struct {
	Key      string
	Distance int
	// Index is the global entry number, usable with Reader.EntryAt.
	Index uint64
}

// maxFuzzyResults caps fuzzy lookup output.
const maxFuzzyResults = 128

// fuzzy scans the block neighborhood of pattern for keys within
// maxDistance edits. The scan spans maxDistance+1 blocks on each side of
// the candidate block, which covers matches straddling a block boundary.
// Results are ordered by ascending distance, then entry order, and capped
// at maxFuzzyResults.
func (idx *KeyIndex) fuzzy(pattern string, maxDistance int, load blockLoader) ([]FuzzyMatch, error) {
	if len(idx.summaries) == 0 || maxDistance < 0 {
		return nil, nil
	}
	center := idx.blockFor(pattern)
	lo := center - (maxDistance + 1)
	if lo < 0 {
		lo = 0
	}
	hi := center + (maxDistance + 1)
	if hi > len(idx.summaries)-1 {
		hi = len(idx.summaries) - 1
	}

	var matches []FuzzyMatch
	for b := lo; b <= hi; b++ {
		entries, err := load(b)
		if err != nil {
			return nil, err
		}
		base := idx.summaries[b].cumEntries
		for i, e := range entries {
			d := idx.cmp.Distance(e.Key, pattern, maxDistance)
			if d > maxDistance {
				continue
			}
			matches = append(matches, FuzzyMatch{Key: e.Key, Distance: d, Index: base + uint64(i)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > maxFuzzyResults {
		matches = matches[:maxFuzzyResults]
	}
	return matches, nil
}
