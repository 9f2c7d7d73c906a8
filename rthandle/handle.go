// Package rthandle implements the shared runtime handle (spec L4): a
// reference-counted, ergonomic facade over scheduler.Loop/SelectSystem that
// turns the scheduler's waker-registration primitives into plain blocking
// Go calls. Where the original models these as futures a task polls,
// goroutines are Go's native coroutines: ReadAsync/WriteAll/WaitUntil/
// WaitForSignals block the calling goroutine on a channel the scheduler
// signals, which is the idiomatic Go shape of the same suspension point.
package rthandle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shellrt/shellrt/scheduler"
	"github.com/shellrt/shellrt/system"
)

// Handle is a reference-counted wrapper around a *scheduler.Loop. Multiple
// goroutines (subshell bodies, builtins) hold independent Handle values
// produced by Clone; the onClose callback given to New runs only when the
// last clone closes, mirroring an Rc<T> without unsafe code. Handle does not
// itself stop the loop.
type Handle struct {
	loop    *scheduler.Loop
	refs    *atomic.Int64
	onClose func()
}

// New wraps loop in a Handle with an initial reference count of 1. onClose,
// if non-nil, runs exactly once, when the reference count drops to zero.
func New(loop *scheduler.Loop, onClose func()) *Handle {
	refs := new(atomic.Int64)
	refs.Store(1)
	return &Handle{loop: loop, refs: refs, onClose: onClose}
}

// Clone increments the reference count and returns a new Handle value
// sharing the same underlying loop. Each returned Handle must be Closed
// independently.
func (h *Handle) Clone() *Handle {
	h.refs.Add(1)
	return &Handle{loop: h.loop, refs: h.refs, onClose: h.onClose}
}

// Close decrements the reference count, running onClose if this was the
// last reference. Closing a Handle more than once is a bug in the caller;
// it is not guarded against here, matching the teacher's convention of
// trusting single-owner-per-value Close contracts (e.g. eventloop.Loop
// itself has no idempotent-Close guard).
func (h *Handle) Close() {
	if h.refs.Add(-1) == 0 && h.onClose != nil {
		h.onClose()
	}
}

// System exposes the underlying system.System for operations that have no
// suspension-point equivalent here (e.g. one-shot getters like Getpid).
func (h *Handle) System() system.System { return h.loop.System() }

// Select exposes the underlying SelectSystem for callers that need to
// install their own waiters or disposition changes directly (e.g. TrapSet).
func (h *Handle) Select() *scheduler.SelectSystem { return h.loop.Select() }

// Loop exposes the underlying Loop, for callers that must run it (the
// top-level shell) or schedule work on it directly.
func (h *Handle) Loop() *scheduler.Loop { return h.loop }

// ReadAsync reads from fd, suspending the calling goroutine (without
// blocking the loop goroutine or any other caller) whenever the read would
// block. It temporarily sets fd non-blocking, restoring the prior flag on
// every return path including cancellation.
func (h *Handle) ReadAsync(ctx context.Context, fd system.FD, buf []byte) (int, error) {
	sys := h.loop.System()
	prev, err := sys.SetNonblocking(fd, true)
	if err != nil {
		return 0, err
	}
	defer sys.SetNonblocking(fd, prev)

	for {
		n, err := sys.Read(fd, buf)
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return n, err
		}
		waiter := h.loop.Select().RegisterReader(fd)
		select {
		case <-waiter.Ready():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// WriteAll writes the entirety of buf, looping through AGAIN by suspending
// until fd is writable and silently retrying on EINTR. An empty buf
// completes immediately with (0, nil), never touching the fd.
func (h *Handle) WriteAll(ctx context.Context, fd system.FD, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	sys := h.loop.System()
	prev, err := sys.SetNonblocking(fd, true)
	if err != nil {
		return 0, err
	}
	defer sys.SetNonblocking(fd, prev)

	written := 0
	for written < len(buf) {
		n, err := sys.Write(fd, buf[written:])
		written += n
		if err == nil {
			continue
		}
		if isInterrupted(err) {
			continue
		}
		if !isWouldBlock(err) {
			return written, err
		}
		waiter := h.loop.Select().RegisterWriter(fd)
		select {
		case <-waiter.Ready():
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
	return written, nil
}

// WaitUntil suspends the calling goroutine until deadline has passed
// (according to the underlying System's clock), or ctx is cancelled first.
// It schedules a one-shot timer on the loop rather than polling, so a
// virtual-backend test using a manually advanced clock only wakes when the
// clock crosses the deadline.
func (h *Handle) WaitUntil(ctx context.Context, deadline time.Time) error {
	now := h.loop.System().Now()
	if !now.Before(deadline) {
		return nil
	}
	done := make(chan struct{})
	if err := h.loop.ScheduleTimer(deadline.Sub(now), func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForSignals suspends until the next batch of caught signals is
// delivered, or returns immediately if a batch is already buffered (signals
// that arrived with no awaiter registered).
func (h *Handle) WaitForSignals(ctx context.Context) ([]system.Signal, error) {
	waiter := h.loop.Select().WaitForSignals()
	select {
	case batch := <-waiter.Caught():
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isWouldBlock(err error) bool {
	e, ok := err.(*system.Errno)
	return ok && e.Kind == system.ErrnoWouldBlock
}

func isInterrupted(err error) bool {
	e, ok := err.(*system.Errno)
	return ok && e.Kind == system.ErrnoInterrupted
}
