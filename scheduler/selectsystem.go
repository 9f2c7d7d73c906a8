package scheduler

import (
	"sync"
	"time"
	"weak"

	"github.com/shellrt/shellrt/system"
)

// fdWaiter is the strong object a waiting goroutine keeps alive on its own
// stack; SelectSystem only ever stores a weak.Pointer to it. Once the
// goroutine stops caring (its local variable goes out of scope) the GC can
// collect the fdWaiter, and the next Scavenge pass notices the dead weak
// pointer and drops the registration — this is the "wakers are held weakly,
// the future holds the sole strong reference" cancellation contract from
// §4.3/§9, implemented with Go's weak package instead of Rust's Weak<T>.
type fdWaiter struct {
	ch chan struct{}
}

// sigWaiter is the signal-wait analogue of fdWaiter.
type sigWaiter struct {
	ch chan []system.Signal
}

// SelectSystem wraps a system.System, coordinating FD-readiness, timer, and
// signal wakers around a single pselect-shaped wait per tick (spec §4.3).
//
// Only the loop goroutine ever calls sys.Select (preserving the "exactly one
// goroutine touches System" invariant); other goroutines that register a
// waiter interrupt an in-flight wait by writing to a self-pipe whose read
// end is folded permanently into the reader set passed to Select, the same
// wake-pipe technique the teacher's poller uses (eventloop/loop.go) instead
// of a second goroutine racing the first one's Select call.
type SelectSystem struct {
	sys         system.System
	wakeReadFD  system.FD
	wakeWriteFD system.FD

	mu          sync.Mutex
	readers     map[system.FD][]weak.Pointer[fdWaiter]
	writers     map[system.FD][]weak.Pointer[fdWaiter]
	sigWaiters  []weak.Pointer[sigWaiter]
	pending     []system.Signal
	parentBlock system.SignalSet
	handled     system.SignalSet
}

func newSelectSystem(sys system.System, wakeReadFD, wakeWriteFD system.FD) *SelectSystem {
	return &SelectSystem{
		sys:         sys,
		wakeReadFD:  wakeReadFD,
		wakeWriteFD: wakeWriteFD,
		readers:     make(map[system.FD][]weak.Pointer[fdWaiter]),
		writers:     make(map[system.FD][]weak.Pointer[fdWaiter]),
		parentBlock: system.NewSignalSet(),
		handled:     system.NewSignalSet(),
	}
}

// wake interrupts an in-flight (or imminent) Select call. Unlike every other
// SelectSystem/System interaction, this may be called from any goroutine:
// writing a byte to a pipe is safe to do concurrently with a blocked
// pselect/Select reading the other end, both on a real kernel pipe and in
// virtsys's mutex-guarded pipe buffer.
func (s *SelectSystem) wake() {
	buf := [1]byte{1}
	// Best-effort: any failure (including a full, non-blocking pipe, which
	// just means a wakeup is already pending) only delays the next tick
	// until the current timeout, if any, elapses.
	_, _ = s.sys.Write(s.wakeWriteFD, buf[:])
}

func (s *SelectSystem) drainWakePipe() {
	var buf [64]byte
	for {
		n, err := s.sys.Read(s.wakeReadFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// RegisterReader registers interest in fd becoming readable. The caller
// must keep the returned *fdWaiter reachable until it has observed
// readiness (or decided to cancel by simply dropping the reference).
func (s *SelectSystem) RegisterReader(fd system.FD) *fdWaiter {
	w := &fdWaiter{ch: make(chan struct{}, 1)}
	s.mu.Lock()
	s.readers[fd] = append(s.readers[fd], weak.Make(w))
	s.mu.Unlock()
	s.wake()
	return w
}

// RegisterWriter is the write-readiness analogue of RegisterReader.
func (s *SelectSystem) RegisterWriter(fd system.FD) *fdWaiter {
	w := &fdWaiter{ch: make(chan struct{}, 1)}
	s.mu.Lock()
	s.writers[fd] = append(s.writers[fd], weak.Make(w))
	s.mu.Unlock()
	s.wake()
	return w
}

// Ready returns the channel that receives exactly one value when the
// registration becomes ready.
func (w *fdWaiter) Ready() <-chan struct{} { return w.ch }

// WaitForSignals returns a *sigWaiter whose channel receives the next batch
// of caught signals. If a batch is already pending (caught with no prior
// awaiter), it is delivered immediately.
func (s *SelectSystem) WaitForSignals() *sigWaiter {
	w := &sigWaiter{ch: make(chan []system.Signal, 1)}
	s.mu.Lock()
	if len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		w.ch <- batch
		return w
	}
	s.sigWaiters = append(s.sigWaiters, weak.Make(w))
	s.mu.Unlock()
	return w
}

func (w *sigWaiter) Caught() <-chan []system.Signal { return w.ch }

// SetDisposition changes a signal's kernel disposition, implementing the
// order-sensitive protocol from §4.3: moving to Catch blocks first, installs
// the catcher, then excludes the signal from the wait mask; moving away
// from Catch changes the disposition first, then unblocks. Violating this
// order opens a window where a delivered signal's default action (often
// termination) fires instead of being caught.
func (s *SelectSystem) SetDisposition(sig system.Signal, disp system.Disposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentLogger().Debug().
		Int("signal", sig.Number).
		Str("disposition", disp.String()).
		Msg("scheduler: disposition change")

	if disp == system.DispositionCatch {
		blocked := system.NewSignalSet(sig.Number)
		if err := s.sys.Sigmask(system.SigmaskAdd, blocked, nil); err != nil {
			return err
		}
		if _, err := s.sys.Sigaction(sig, disp); err != nil {
			return err
		}
		s.handled.Add(sig.Number)
		return nil
	}

	if _, err := s.sys.Sigaction(sig, disp); err != nil {
		return err
	}
	s.handled.Remove(sig.Number)
	unblock := system.NewSignalSet(sig.Number)
	return s.sys.Sigmask(system.SigmaskRemove, unblock, nil)
}

// SetParentBlockedSignals records the signal mask inherited at startup,
// used to compute the wait mask each tick.
func (s *SelectSystem) SetParentBlockedSignals(set system.SignalSet) {
	s.mu.Lock()
	s.parentBlock = set.Clone()
	s.mu.Unlock()
}

// waitMask computes (parent-inherited blocked) \ (signals the shell
// handles itself) — the mask installed for the duration of pselect so the
// shell observes exactly the signals it cares about (§4.3 step 3).
func (s *SelectSystem) waitMask() system.SignalSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	mask := s.parentBlock.Clone()
	for n := range s.handled {
		mask.Remove(n)
	}
	return mask
}

// tick performs one pselect-shaped wait, called only from the loop
// goroutine, and dispatches every resulting event: FD readiness, caught
// signals. Timer expiry is handled by Loop itself (it owns the timer heap
// and computes timeout), matching §4.3 steps 1-2 and 4-6 split across
// Loop.tick/runTimers and SelectSystem.tick.
func (s *SelectSystem) tick(timeout *time.Duration) {
	readers, writers := s.collectFDs()
	readers = append(readers, s.wakeReadFD)
	mask := s.waitMask()

	n, err := s.sys.Select(&readers, &writers, timeout, &mask)

	if err != nil {
		if e, ok := err.(*system.Errno); ok {
			switch e.Kind {
			case system.ErrnoBadFD:
				s.wakeAllFDWaiters()
			case system.ErrnoInterrupted:
				// treated as success with nothing ready
			}
		}
	} else if n > 0 {
		for _, fd := range readers {
			if fd == s.wakeReadFD {
				s.drainWakePipe()
				break
			}
		}
		s.wakeReady(readers, writers)
	}

	if caught := s.sys.DrainCaughtSignals(); len(caught) > 0 {
		s.dispatchSignals(caught)
	}
}

func (s *SelectSystem) collectFDs() ([]system.FD, []system.FD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var readers, writers []system.FD
	for fd, ws := range s.readers {
		if anyAlive(ws) {
			readers = append(readers, fd)
		}
	}
	for fd, ws := range s.writers {
		if anyAlive(ws) {
			writers = append(writers, fd)
		}
	}
	return readers, writers
}

func anyAlive(ws []weak.Pointer[fdWaiter]) bool {
	for _, w := range ws {
		if w.Value() != nil {
			return true
		}
	}
	return false
}

func (s *SelectSystem) wakeReady(readers, writers []system.FD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fd := range readers {
		for _, w := range s.readers[fd] {
			if v := w.Value(); v != nil {
				nonBlockingSend(v.ch)
			}
		}
		delete(s.readers, fd)
	}
	for _, fd := range writers {
		for _, w := range s.writers[fd] {
			if v := w.Value(); v != nil {
				nonBlockingSend(v.ch)
			}
		}
		delete(s.writers, fd)
	}
}

func (s *SelectSystem) wakeAllFDWaiters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fd, ws := range s.readers {
		for _, w := range ws {
			if v := w.Value(); v != nil {
				nonBlockingSend(v.ch)
			}
		}
		delete(s.readers, fd)
	}
	for fd, ws := range s.writers {
		for _, w := range ws {
			if v := w.Value(); v != nil {
				nonBlockingSend(v.ch)
			}
		}
		delete(s.writers, fd)
	}
}

func (s *SelectSystem) dispatchSignals(batch []system.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	woke := false
	for _, w := range s.sigWaiters {
		if v := w.Value(); v != nil {
			select {
			case v.ch <- batch:
			default:
			}
			woke = true
		}
	}
	s.sigWaiters = nil
	if !woke {
		s.pending = append(s.pending, batch...)
	}
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Scavenge drops dead weak-pointer registrations, bounded to at most budget
// map buckets per call so a GC sweep never costs more than a fixed amount of
// work in a single tick — adapted from the teacher's registry.Scavenge
// budgeted-sweep pattern (eventloop/registry.go).
func (s *SelectSystem) Scavenge(budget int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checked := 0
	for fd, ws := range s.readers {
		if checked >= budget {
			break
		}
		checked++
		if !anyAlive(ws) {
			delete(s.readers, fd)
		}
	}
	for fd, ws := range s.writers {
		if checked >= budget {
			break
		}
		checked++
		if !anyAlive(ws) {
			delete(s.writers, fd)
		}
	}
	alive := s.sigWaiters[:0]
	for _, w := range s.sigWaiters {
		if w.Value() != nil {
			alive = append(alive, w)
		}
	}
	s.sigWaiters = alive
}
