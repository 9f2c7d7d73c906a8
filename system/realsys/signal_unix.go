//go:build linux

package realsys

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

// fixedSignals maps the portable SignalBase set onto glibc/Linux numbering.
// Real-time signals are handled separately via rtMin/rtMax below.
var fixedSignals = []struct {
	base system.SignalBase
	num  int
}{
	{system.SIGHUP, 1}, {system.SIGINT, 2}, {system.SIGQUIT, 3}, {system.SIGILL, 4}, {system.SIGTRAP, 5},
	{system.SIGABRT, 6}, {system.SIGBUS, 7}, {system.SIGFPE, 8}, {system.SIGKILL, 9}, {system.SIGUSR1, 10},
	{system.SIGSEGV, 11}, {system.SIGUSR2, 12}, {system.SIGPIPE, 13}, {system.SIGALRM, 14}, {system.SIGTERM, 15},
	{system.SIGCHLD, 17}, {system.SIGCONT, 18}, {system.SIGSTOP, 19}, {system.SIGTSTP, 20}, {system.SIGTTIN, 21},
	{system.SIGTTOU, 22}, {system.SIGURG, 23}, {system.SIGXCPU, 24}, {system.SIGXFSZ, 25}, {system.SIGVTALRM, 26},
	{system.SIGPROF, 27}, {system.SIGWINCH, 28}, {system.SIGIO, 29}, {system.SIGSYS, 31},
}

// rtMin/rtMax are the glibc real-time signal bounds on Linux; the first two
// signals of the kernel's raw real-time range (32 and 33) are reserved by the
// NPTL threading implementation, which is why glibc's usable range starts at
// 34, while it ends at the kernel's own maximum, 64.
const rtMin, rtMax = 34, 64

func resolveSignalBase(base system.SignalBase) (system.Signal, bool) {
	for _, s := range fixedSignals {
		if s.base == base {
			return system.Signal{Name: system.SignalName{Base: s.base}, Number: s.num}, true
		}
	}
	return system.Signal{}, false
}

func signalFromNumber(n int) system.Signal {
	for _, s := range fixedSignals {
		if s.num == n {
			return system.Signal{Name: system.SignalName{Base: s.base}, Number: n}
		}
	}
	if n >= rtMin && n <= rtMax {
		return system.Signal{Name: system.SignalName{Base: system.SIGRTMIN, RTOffset: n - rtMin}, Number: n}
	}
	return system.Signal{Name: system.SignalName{Base: system.SignalBase("UNKNOWN")}, Number: n}
}

// signalRegistry is the realsys process-global signal-handling state: which
// disposition each signal currently has, the shared notification channel
// os/signal delivers onto, and the buffer of signals caught but not yet
// drained. Signal delivery is inherently process-wide, so unlike nearly
// everything else in this package this state is a singleton rather than a
// RealSystem field — a second RealSystem in the same process would observe
// the same kernel signal handlers regardless of which struct fields it has.
var signalRegistry = struct {
	sync.Mutex
	disposition map[int]system.Disposition
	notifyCh    chan os.Signal
	caught      []system.Signal
	started     bool
}{
	disposition: make(map[int]system.Disposition),
}

func ensureDrainerStarted() chan os.Signal {
	if signalRegistry.notifyCh == nil {
		signalRegistry.notifyCh = make(chan os.Signal, 64)
	}
	if !signalRegistry.started {
		signalRegistry.started = true
		ch := signalRegistry.notifyCh
		// A signal already awaiting drain coalesces with the new delivery;
		// once caughtSlots distinct signals are pending, new distinct ones
		// are dropped.
		const caughtSlots = 8
		go func() {
			for sig := range ch {
				num := int(sig.(syscall.Signal))
				signalRegistry.Lock()
				pending := false
				for _, c := range signalRegistry.caught {
					if c.Number == num {
						pending = true
						break
					}
				}
				if !pending && len(signalRegistry.caught) < caughtSlots {
					signalRegistry.caught = append(signalRegistry.caught, signalFromNumber(num))
				}
				signalRegistry.Unlock()
			}
		}()
	}
	return signalRegistry.notifyCh
}

func (r *RealSystem) ValidateSignal(raw int) (system.Signal, bool) {
	if raw >= 1 && raw <= rtMax {
		return signalFromNumber(raw), true
	}
	return system.Signal{}, false
}

func (r *RealSystem) ResolveSignal(base system.SignalBase) (system.Signal, bool) {
	return resolveSignalBase(base)
}

// Sigaction installs disp for sig. Catch is implemented via os/signal
// (Go's runtime owns the actual sigaction trampoline; there is no portable
// way to install a custom C handler without cgo), forwarding into a single
// shared channel drained by a background goroutine into the caught buffer
// that DrainCaughtSignals empties. Ignore and Default map onto
// signal.Ignore/signal.Reset. For a signal not set through Sigaction
// before, the previous disposition reported is Ignore if the process
// started with it ignored, and Default otherwise.
func (r *RealSystem) Sigaction(sig system.Signal, disp system.Disposition) (system.Disposition, error) {
	sysSig := syscall.Signal(sig.Number)
	signalRegistry.Lock()
	previous, known := signalRegistry.disposition[sig.Number]
	if !known && signal.Ignored(sysSig) {
		previous = system.DispositionIgnore
	}
	signalRegistry.disposition[sig.Number] = disp
	signalRegistry.Unlock()

	switch disp {
	case system.DispositionCatch:
		ch := ensureDrainerStarted()
		signal.Notify(ch, sysSig)
	case system.DispositionIgnore:
		signal.Ignore(sysSig)
	default:
		signal.Reset(sysSig)
	}
	return previous, nil
}

func (r *RealSystem) Sigmask(op system.SigmaskOp, set system.SignalSet, out *system.SignalSet) error {
	var newSet, oldSet unix.Sigset_t
	for n := range set {
		addToSigset(&newSet, n)
	}
	if err := unix.PthreadSigmask(sigmaskHow(op), &newSet, &oldSet); err != nil {
		return wrapErrno("pthread_sigmask", err)
	}
	if out != nil {
		*out = sigsetToSignalSet(&oldSet)
	}
	return nil
}

func sigmaskHow(op system.SigmaskOp) int {
	switch op {
	case system.SigmaskAdd:
		return unix.SIG_BLOCK
	case system.SigmaskRemove:
		return unix.SIG_UNBLOCK
	default:
		return unix.SIG_SETMASK
	}
}

// addToSigset and sigsetToSignalSet only handle the 64 signals representable
// in unix.Sigset_t's bitmap, which covers the entire fixed-plus-realtime
// range this shell validates signals against.
func addToSigset(set *unix.Sigset_t, num int) {
	if num < 1 || num > 64 {
		return
	}
	word := (num - 1) / 64
	bit := uint((num - 1) % 64)
	set.Val[word] |= 1 << bit
}

func sigsetToSignalSet(set *unix.Sigset_t) system.SignalSet {
	out := system.NewSignalSet()
	for i := 1; i <= 64; i++ {
		word := (i - 1) / 64
		bit := uint((i - 1) % 64)
		if set.Val[word]&(1<<bit) != 0 {
			out.Add(i)
		}
	}
	return out
}

func (r *RealSystem) DrainCaughtSignals() []system.Signal {
	signalRegistry.Lock()
	defer signalRegistry.Unlock()
	if len(signalRegistry.caught) == 0 {
		return nil
	}
	out := signalRegistry.caught
	signalRegistry.caught = nil
	return out
}

func signalAction(sig unix.Signal, handler uintptr) (unix.Sigaction_t, error) {
	var old unix.Sigaction_t
	act := unix.Sigaction_t{Handler: handler}
	if err := unix.Sigaction(sig, &act, &old); err != nil {
		return unix.Sigaction_t{}, err
	}
	return old, nil
}

func signalActionRestore(sig unix.Signal, old unix.Sigaction_t) {
	unix.Sigaction(sig, &old, nil)
}
