package statfile

import (
	"encoding/binary"
	"time"
)

// Synchronizer describes the external collaborator contract of spec.md
// §6.2: something that reads and writes the header's revision/rev_time pair
// to drive replication between hosts. The pool and handle never call an
// implementation of this themselves — revision bumps happen only via the
// methods below, invoked by the caller's own synchronizer.
type Synchronizer interface {
	GetRevision(h *Handle) (revision uint64, revTime time.Time)
	SetRevision(h *Handle, revision uint64, revTime time.Time)
	IncRevision(h *Handle, now time.Time) (newRevision uint64)
}

// GetRevision reads the header's revision counter and its timestamp.
func (h *Handle) GetRevision() (revision uint64, revTime time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rev := binary.LittleEndian.Uint64(h.data[offRevision:])
	ts := binary.LittleEndian.Uint64(h.data[offRevTime:])

	return rev, time.Unix(int64(ts), 0)
}

// SetRevision overwrites the header's revision counter and timestamp. This
// is the primitive reindex() uses to carry revision metadata forward
// (spec.md §3.4, §4.3 reindex, §8.1 "Revision preservation").
func (h *Handle) SetRevision(revision uint64, revTime time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	binary.LittleEndian.PutUint64(h.data[offRevision:], revision)
	binary.LittleEndian.PutUint64(h.data[offRevTime:], uint64(revTime.Unix()))
}

// IncRevision bumps the revision counter by one and stamps rev_time to now,
// returning the new revision. This is the only revision mutation the
// synchronizer contract (spec.md §6.2) needs beyond Get/Set.
func (h *Handle) IncRevision(now time.Time) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	rev := binary.LittleEndian.Uint64(h.data[offRevision:]) + 1
	binary.LittleEndian.PutUint64(h.data[offRevision:], rev)
	binary.LittleEndian.PutUint64(h.data[offRevTime:], uint64(now.Unix()))

	return rev
}

// defaultSynchronizer is the identity implementation of Synchronizer,
// delegating straight to the Handle methods above. Supplied so callers that
// don't have their own synchronizer can still exercise the contract.
type defaultSynchronizer struct{}

func (defaultSynchronizer) GetRevision(h *Handle) (uint64, time.Time) { return h.GetRevision() }
func (defaultSynchronizer) SetRevision(h *Handle, rev uint64, t time.Time) { h.SetRevision(rev, t) }
func (defaultSynchronizer) IncRevision(h *Handle, now time.Time) uint64 { return h.IncRevision(now) }

// DefaultSynchronizer returns the trivial Synchronizer used when the caller
// has no external replication system.
func DefaultSynchronizer() Synchronizer { return defaultSynchronizer{} }
