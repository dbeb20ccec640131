package container

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/INLOpen/dictbase/core"
)

// recordSummarySize is the wire size of one record block summary:
// startOffset u64, compressedLen u32, decompressedLen u32, checksum u32.
const recordSummarySize = 8 + 4 + 4 + 4

// RecordBlockSummary describes one record block: where its decompressed
// payload starts in the logical record stream, and the lengths and
// checksum of the block.
type RecordBlockSummary struct {
	StartOffset     uint64
	CompressedLen   uint32 // block body, excluding the block header
	DecompressedLen uint32
	Checksum        uint32

	// offset of the block within the record blocks section.
	offset uint64
}

func (s *RecordBlockSummary) appendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, s.StartOffset)
	dst = binary.BigEndian.AppendUint32(dst, s.CompressedLen)
	dst = binary.BigEndian.AppendUint32(dst, s.DecompressedLen)
	dst = binary.BigEndian.AppendUint32(dst, s.Checksum)
	return dst
}

// RecordIndex maps logical offsets in the decompressed record stream to
// record blocks.
type RecordIndex struct {
	summaries []RecordBlockSummary
	total     uint64 // total decompressed length
}

// parseRecordIndex decodes the record summaries section and validates
// that the blocks form one contiguous logical stream.
func parseRecordIndex(data []byte, h *Header) (*RecordIndex, error) {
	if len(data)%recordSummarySize != 0 {
		return nil, fmt.Errorf("record summaries section of %d bytes is not a summary multiple: %w", len(data), core.ErrCorrupted)
	}
	idx := &RecordIndex{}
	var blockOffset, logical uint64
	for p := 0; p < len(data); p += recordSummarySize {
		s := RecordBlockSummary{
			StartOffset:     binary.BigEndian.Uint64(data[p : p+8]),
			CompressedLen:   binary.BigEndian.Uint32(data[p+8 : p+12]),
			DecompressedLen: binary.BigEndian.Uint32(data[p+12 : p+16]),
			Checksum:        binary.BigEndian.Uint32(data[p+16 : p+20]),
			offset:          blockOffset,
		}
		if s.StartOffset != logical {
			return nil, fmt.Errorf("record block %d starts at %d, previous block ends at %d: %w",
				len(idx.summaries), s.StartOffset, logical, core.ErrCorrupted)
		}
		if s.DecompressedLen == 0 {
			return nil, fmt.Errorf("record block %d is empty: %w", len(idx.summaries), core.ErrCorrupted)
		}
		idx.summaries = append(idx.summaries, s)
		blockOffset += core.BlockHeaderSize + uint64(s.CompressedLen)
		logical += uint64(s.DecompressedLen)
	}

	if uint32(len(idx.summaries)) != h.RecordBlockCount {
		return nil, fmt.Errorf("%d record block summaries, header says %d: %w", len(idx.summaries), h.RecordBlockCount, core.ErrCorrupted)
	}
	if blockOffset != h.RecordBlocks.Length {
		return nil, fmt.Errorf("record blocks sum to %d bytes, section is %d: %w", blockOffset, h.RecordBlocks.Length, core.ErrCorrupted)
	}
	idx.total = logical
	return idx, nil
}

// Blocks returns the number of record blocks.
func (idx *RecordIndex) Blocks() int { return len(idx.summaries) }

// TotalLength returns the decompressed length of the whole record stream.
func (idx *RecordIndex) TotalLength() uint64 { return idx.total }

// Summary returns the summary for block i.
func (idx *RecordIndex) Summary(i int) *RecordBlockSummary { return &idx.summaries[i] }

// Locate returns the block containing the logical offset and the offset's
// position within that block's decompressed payload.
func (idx *RecordIndex) Locate(logical uint64) (block int, within uint32, err error) {
	if logical >= idx.total {
		return 0, 0, fmt.Errorf("logical offset %d of %d: %w", logical, idx.total, core.ErrCorrupted)
	}
	// First block starting past logical, minus one.
	b := sort.Search(len(idx.summaries), func(i int) bool {
		return idx.summaries[i].StartOffset > logical
	}) - 1
	return b, uint32(logical - idx.summaries[b].StartOffset), nil
}
