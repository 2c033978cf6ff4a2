package statfile

import "time"

// blockTable provides get/put/eviction over the block array of one section.
// It operates directly on the mapped bytes at [base, base+length*blockSize);
// callers (Handle) are responsible for holding whatever lock excludes
// concurrent remaps of that mapping. See spec.md §4.2.
type blockTable struct {
	data   []byte // the full file mapping
	base   uint64 // byte offset of block[0] for this section
	length uint64 // section length, in blocks
}

// slotOffset returns the byte offset of block index i within the mapping.
func (t *blockTable) slotOffset(i uint64) uint64 {
	return t.base + i*blockSize
}

// probeLimit returns the number of slots the chain starting at slot0 may
// inspect: min(chainLength, length-slot0). Per spec.md §9 open question 1,
// the probe window is clamped to the section length without wraparound, so
// keys whose slot0 falls within the last chainLength-1 slots get a shorter
// effective chain. This is preserved for bit-level compatibility.
func (t *blockTable) probeLimit(slot0 uint64) uint64 {
	remaining := t.length - slot0
	if remaining > chainLength {
		return chainLength
	}

	return remaining
}

// get implements spec.md §4.2 get(h1, h2, now).
func (t *blockTable) get(h1, h2 uint32, now time.Time, accessTime *uint64) float64 {
	if accessTime != nil {
		*accessTime = uint64(now.Unix())
	}

	if t.length == 0 {
		return 0.0
	}

	slot0 := uint64(h1) % t.length
	limit := t.probeLimit(slot0)

	for i := uint64(0); i < limit; i++ {
		off := t.slotOffset(slot0 + i)
		b := decodeBlock(t.data[off:])

		if b.Hash1 == h1 && b.Hash2 == h2 {
			return b.Value
		}
	}

	return 0.0
}

// put implements spec.md §4.2 put(h1, h2, t, value, touch_access), including
// value-minimum eviction when the chain is full (§4.2 "Eviction
// rationale"). usedBlocks is incremented via the returned delta (0 or 1) so
// the caller can apply it to the header counter under whatever discipline it
// uses (see spec.md §5: used_blocks is advisory and may be incremented
// without a lock).
func (t *blockTable) put(h1, h2 uint32, value float64) (usedBlocksDelta uint64) {
	if t.length == 0 {
		return 0
	}

	slot0 := uint64(h1) % t.length
	limit := t.probeLimit(slot0)

	var (
		haveMin  bool
		minOff   uint64
		minValue float64
	)

	for i := uint64(0); i < limit; i++ {
		off := t.slotOffset(slot0 + i)
		b := decodeBlock(t.data[off:])

		switch {
		case b.Hash1 == h1 && b.Hash2 == h2:
			// Exact match: overwrite value in place.
			encodeBlockInto(t.data[off:], block{Hash1: h1, Hash2: h2, Value: value})
			return 0

		case isFreeBlock(b.Hash1, b.Hash2):
			// Free slot: occupy it.
			encodeBlockInto(t.data[off:], block{Hash1: h1, Hash2: h2, Value: value})
			return 1

		default:
			if !haveMin || b.Value < minValue {
				haveMin = true
				minOff = off
				minValue = b.Value
			}
		}
	}

	// Chain full: evict the minimum-valued slot. If the chain was empty
	// from the start (limit == 0), overwrite slot0 directly per spec.md
	// §4.2 step 4.
	if !haveMin {
		minOff = t.slotOffset(slot0)
	}

	encodeBlockInto(t.data[minOff:], block{Hash1: h1, Hash2: h2, Value: value})

	return 0
}

// countUsed scans the whole section and counts blocks with a non-zero
// hash1, matching the load-counting rule in spec.md §3.1 ("hash1 != 0 is
// sufficient to treat the block as occupied"). Reindex does not use it:
// used_blocks there is tracked through Put as entries are copied.
func (t *blockTable) countUsed() uint64 {
	var n uint64

	for i := uint64(0); i < t.length; i++ {
		off := t.slotOffset(i)
		h1 := leUint32(t.data[off:])

		if h1 != 0 {
			n++
		}
	}

	return n
}

// forEach visits every occupied block in the section in storage order.
func (t *blockTable) forEach(fn func(b block)) {
	for i := uint64(0); i < t.length; i++ {
		off := t.slotOffset(i)
		b := decodeBlock(t.data[off:])

		if !isFreeBlock(b.Hash1, b.Hash2) {
			fn(b)
		}
	}
}
