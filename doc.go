// Package statfile implements a memory-mapped statistics file engine for
// persisting per-token frequency counts, the kind of thing a Bayesian mail
// classifier uses to remember how often a token hash pair has been seen.
//
// A statfile is a fixed-capacity, on-disk hash table keyed by two 32-bit
// hashes and valued by a 64-bit float. The file is mapped into the process
// address space once and read/written in place as a chained,
// open-addressed table with a bounded probe length and value-minimum
// eviction.
//
// # Basic usage
//
//	pool := statfile.NewPool(statfile.DefaultPoolConfig(), nil, nil, nil)
//	defer pool.DestroyPool()
//
//	h, err := pool.Open("/var/lib/rspamd/bayes.spam.map", 1<<20, false)
//	if err != nil {
//	    // handle err
//	}
//
//	h.Put(0x11111111, 0x22222222, time.Now(), 1.5, true)
//	v := h.Get(0x11111111, 0x22222222, time.Now())
//
// # Concurrency
//
// Within one process, a [Pool] mutex serializes structural changes (open,
// close, reindex) and each [Handle] carries its own mutex for remap-related
// operations. Across processes sharing the same mapping, Get/Put are not
// synchronized — small torn reads/writes on a single counter are tolerated,
// permanent corruption is not; the header's used_blocks counter is advisory
// and may drift.
//
// # Error handling
//
// Format and file-size errors are rebuild-class: the caller should delete and
// recreate the file. Transient errors (pool at capacity, reindex busy)
// should be retried. See the sentinel errors in errors.go.
package statfile
