package statfile

import "time"

// Timer is the external collaborator contract of spec.md §6.2: a
// single-shot scheduler the pool uses to drive flushes. The production
// implementation wraps time.AfterFunc; tests substitute a fake that fires
// synchronously so flush scheduling scenarios (spec.md §8.2 scenario 6) are
// deterministic.
type Timer interface {
	// ScheduleOnce arms a one-shot callback after delay and returns a
	// handle that Cancel accepts.
	ScheduleOnce(delay time.Duration, callback func()) TimerHandle

	// Cancel disarms a previously scheduled callback. Safe to call after
	// the callback has already fired.
	Cancel(h TimerHandle)
}

// TimerHandle identifies a scheduled callback.
type TimerHandle interface{}

// realTimer implements Timer with the standard library's time.AfterFunc.
type realTimer struct{}

// NewRealTimer returns the production Timer.
func NewRealTimer() Timer { return realTimer{} }

type realTimerHandle struct {
	t *time.Timer
}

func (realTimer) ScheduleOnce(delay time.Duration, callback func()) TimerHandle {
	t := time.AfterFunc(delay, callback)
	return &realTimerHandle{t: t}
}

func (realTimer) Cancel(h TimerHandle) {
	rh, ok := h.(*realTimerHandle)
	if !ok || rh == nil {
		return
	}

	rh.t.Stop()
}
