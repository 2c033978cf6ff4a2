package statfile

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
)

// StatfilesMax is the hard cap on simultaneously open handles (spec.md §4.4).
const StatfilesMax = 255

// Pool is a bounded registry of open statfile handles: a pool mutex
// serializing structural changes (open/close/create/reindex), an optional
// mlock policy, and a flush timer. Mirrors spec.md §3.2 Pool and the
// teacher's fileRegistry/registryEntry split, collapsed to a single
// pool-wide mutex plus each Handle's own mutex (block-table ops are not
// synchronized across processes, spec.md §5).
type Pool struct {
	mu sync.Mutex

	handles []*Handle // dense array; order is insertion order, compacted on close
	maxOpen int

	mlockEnabled bool

	clock  Clock
	timer  Timer
	logger Logger

	flushInterval time.Duration
	flushJitter   time.Duration
	flushPending  TimerHandle

	closed bool
}

// NewPool constructs a Pool from a PoolConfig and its external collaborators
// (spec.md §3.4 "Pool created from a config object"). A nil clock or timer
// defaults to the real implementation; a nil logger discards messages.
func NewPool(cfg PoolConfig, clock Clock, timer Timer, logger Logger) *Pool {
	if clock == nil {
		clock = SystemClock()
	}

	if timer == nil {
		timer = NewRealTimer()
	}

	if logger == nil {
		logger = NoopLogger()
	}

	maxOpen := cfg.MaxOpenFiles
	if maxOpen <= 0 || maxOpen > StatfilesMax {
		maxOpen = StatfilesMax
	}

	return &Pool{
		maxOpen:       maxOpen,
		mlockEnabled:  cfg.MlockEnabled,
		clock:         clock,
		timer:         timer,
		logger:        logger,
		flushInterval: cfg.FlushInterval,
		flushJitter:   cfg.FlushJitter,
	}
}

// isOpenLocked returns the handle for path, if already open. Callers must
// hold p.mu. Linear search over the dense array, per spec.md §4.4 is_open.
func (p *Pool) isOpenLocked(path string) (*Handle, bool) {
	for _, h := range p.handles {
		if h.Path() == path {
			return h, true
		}
	}

	return nil, false
}

// IsOpen reports whether path is already open in the pool.
func (p *Pool) IsOpen(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.isOpenLocked(path)

	return ok
}

// Open implements spec.md §4.3 open(pool, path, requested_size, forced).
//
//  1. If already open, return the existing handle.
//  2. If pool at capacity, fail with ErrCapacityExceeded.
//  3. stat the file; if the size drift exceeds 2*header_size and
//     requested_size > header_size and not forced, reindex to
//     requested_size instead of opening directly.
//  4. Otherwise open/mmap/validate via openHandle.
//  5. Stamp timestamps; attempt mlock if the pool's policy is enabled,
//     demoting to a warning and disabling the policy pool-wide on failure.
//  6. Preload (handled inside openHandle).
func (p *Pool) Open(path string, requestedSize int64, forced bool) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if h, ok := p.isOpenLocked(path); ok {
		return h, nil
	}

	if len(p.handles) >= p.maxOpen {
		return nil, ErrCapacityExceeded
	}

	info, statErr := os.Stat(path)
	if statErr == nil && !forced && requestedSize > headerSize {
		drift := info.Size() - requestedSize
		if drift < 0 {
			drift = -drift
		}

		if drift > 2*headerSize {
			h, err := reindex(path, requestedSize, p.logger)
			if err != nil {
				return nil, err
			}

			p.afterOpenLocked(h)

			return h, nil
		}
	}

	h, err := openHandle(path, p.logger)
	if err != nil {
		return nil, err
	}

	p.afterOpenLocked(h)

	return h, nil
}

// afterOpenLocked registers a freshly opened handle and applies the pool's
// mlock policy. Callers must hold p.mu.
func (p *Pool) afterOpenLocked(h *Handle) {
	p.handles = append(p.handles, h)

	if !p.mlockEnabled {
		return
	}

	if err := h.lockPages(); err != nil {
		p.logger.Warn(fmt.Sprintf("statfile pool: mlock failed for %s, disabling pool-wide mlock: %v", h.Path(), err))
		p.mlockEnabled = false
	}
}

// Create implements the codec create() operation (spec.md §4.1) scoped to
// the pool: it fails if a handle for path is already open.
func (p *Pool) Create(path string, size int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.isOpenLocked(path); ok {
		return fmt.Errorf("%w: %s is already open", ErrInvalidArgument, path)
	}

	return createFile(path, size)
}

// Close closes the handle for path and compacts it out of the dense array,
// preserving density per spec.md §3.4 "close(handle)".
func (p *Pool) Close(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, h := range p.handles {
		if h.Path() != path {
			continue
		}

		err := h.close()
		p.handles = append(p.handles[:i], p.handles[i+1:]...)

		return err
	}

	return fmt.Errorf("%w: %s is not open", ErrInvalidArgument, path)
}

// DestroyPool closes every open handle and disarms the flush timer, per
// spec.md §3.4 "destroy_pool closes all handles".
func (p *Pool) DestroyPool() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	if p.flushPending != nil {
		p.timer.Cancel(p.flushPending)
		p.flushPending = nil
	}

	var firstErr error

	for _, h := range p.handles {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.handles = nil

	return firstErr
}

// LockAll attempts mlock on every currently open handle, stopping at the
// first failure and disabling the pool's mlock policy (spec.md §4.4
// lock_all).
func (p *Pool) LockAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.handles {
		if err := h.lockPages(); err != nil {
			p.mlockEnabled = false
			return err
		}
	}

	p.mlockEnabled = true

	return nil
}

// PlanInvalidate arms a one-shot flush timer at seconds + uniform(0,
// jitter), per spec.md §4.4 plan_invalidate. A call while a timer is
// already pending re-arms it to the new deadline, cancelling the old one.
func (p *Pool) PlanInvalidate(seconds, jitter float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flushPending != nil {
		p.timer.Cancel(p.flushPending)
		p.flushPending = nil
	}

	delay := time.Duration(seconds * float64(time.Second))
	if jitter > 0 {
		delay += time.Duration(rand.Float64() * jitter * float64(time.Second))
	}

	p.flushPending = p.timer.ScheduleOnce(delay, p.onFlushFire)
}

// onFlushFire is the flush timer callback: msync(MS_ASYNC) on every open
// handle, per spec.md §4.4. Errors are logged, never returned — flush
// failures are best-effort (spec.md §7 "msync(MS_ASYNC) failures during
// flush are logged and ignored").
func (p *Pool) onFlushFire() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushPending = nil

	for _, h := range p.handles {
		h.mu.Lock()
		err := msyncAsync(h.data)
		h.mu.Unlock()

		if err != nil {
			p.logger.Warn(fmt.Sprintf("statfile pool: flush %s: %v", h.Path(), err))
		}
	}
}

// GetBySymbol resolves symbol through cfg's bindings, then follows
// is_open → open → (create if tryCreate and open failed) → open again, per
// spec.md §4.4 get_by_symbol.
func (p *Pool) GetBySymbol(cfg ClassifierConfig, symbol string, tryCreate bool) (*Handle, error) {
	sf, ok := cfg.Symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %q", ErrInvalidArgument, symbol)
	}

	if h, ok := p.isOpen(sf.Path); ok {
		return h, nil
	}

	h, err := p.Open(sf.Path, sf.SizeBytes, false)
	if err == nil {
		return h, nil
	}

	if !tryCreate {
		return nil, err
	}

	if createErr := p.Create(sf.Path, sf.SizeBytes); createErr != nil {
		return nil, createErr
	}

	return p.Open(sf.Path, sf.SizeBytes, true)
}

func (p *Pool) isOpen(path string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.isOpenLocked(path)
}
