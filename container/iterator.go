package container

// Iterator walks entries in collation order. It is single-goroutine; a
// fresh one is obtained from Reader.Entries or Reader.Prefix.
//
//	it := r.Entries()
//	for it.Next() {
//		key, payload := it.At()
//		...
//	}
//	if err := it.Error(); err != nil { ... }
type Iterator struct {
	r   *Reader
	pos position

	// prefix bounds the iteration when set; limit caps the number of
	// entries when positive.
	prefix string
	limit  int

	entries []KeyEntry
	loaded  int // block number entries belongs to; valid when entries != nil

	key     string
	payload []byte
	emitted int
	err     error
	done    bool
}

// Next advances to the next entry. It returns false at the end of the
// iteration or on the first error.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if err := it.r.checkOpen(); err != nil {
		it.err = err
		return false
	}
	if it.limit > 0 && it.emitted >= it.limit {
		it.done = true
		return false
	}

	for {
		if it.pos.block >= it.r.keys.Blocks() {
			it.done = true
			return false
		}
		if it.entries == nil || it.loaded != it.pos.block {
			entries, err := it.r.keyBlockEntries(it.pos.block)
			if err != nil {
				it.err = err
				return false
			}
			it.entries = entries
			it.loaded = it.pos.block
		}
		if it.pos.entry < len(it.entries) {
			break
		}
		it.pos = position{block: it.pos.block + 1}
	}

	entry := it.entries[it.pos.entry]
	if it.prefix != "" && !it.r.cmp.HasPrefix(entry.Key, it.prefix) {
		// Keys are sorted, so the first non-match ends the prefix run.
		it.done = true
		return false
	}

	payload, err := it.r.entryPayload(it.pos, it.entries)
	if err != nil {
		it.err = err
		return false
	}
	it.key = entry.Key
	it.payload = payload
	it.pos.entry++
	it.emitted++
	return true
}

// At returns the current entry. Valid only after a true Next.
func (it *Iterator) At() (key string, payload []byte) {
	return it.key, it.payload
}

// Index returns the global entry number of the current entry.
func (it *Iterator) Index() uint64 {
	return it.r.keys.globalIndex(position{block: it.pos.block, entry: it.pos.entry - 1})
}

// Error returns the first error the iteration hit, if any.
func (it *Iterator) Error() error {
	return it.err
}
