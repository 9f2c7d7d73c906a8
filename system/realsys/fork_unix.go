//go:build linux

package realsys

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

// rawSigset is the kernel's 64-bit sigset_t used by rt_sigprocmask on
// linux/amd64 and linux/arm64; real-time signals beyond 64 are out of scope
// for fork-time masking, which only needs to suppress delivery for the
// handful of instructions between clone and the child settling down.
type rawSigset = uint64

const sizeofSigset = 8

// beforeFork blocks every signal and returns the prior mask, so that no
// handler runs in the narrow window between clone(2) and the child (or
// parent) restoring its real mask. Grounded on gVisor's
// subprocess_linux.go beforeFork/afterFork pair, adapted from their
// ptrace-stub bookkeeping to plain signal masking since this shell has no
// tracer to coordinate with.
func beforeFork() (rawSigset, error) {
	var full rawSigset = ^rawSigset(0)
	var old rawSigset
	_, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, uintptr(unix.SIG_BLOCK),
		uintptr(unsafe.Pointer(&full)), uintptr(unsafe.Pointer(&old)), sizeofSigset, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return old, nil
}

func afterFork(old rawSigset) {
	unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, uintptr(unix.SIG_SETMASK),
		uintptr(unsafe.Pointer(&old)), 0, sizeofSigset, 0, 0)
}

// childStarter implements system.ChildStarter. In the parent it is a
// one-shot accessor for the child's pid; in the child it runs body exactly
// once and never returns, exiting the process with body's result.
type childStarter struct {
	pid     system.ProcessID
	isChild bool
	sys     *RealSystem
}

func (c *childStarter) Start(body func(self system.System) system.ExitCode) system.ProcessID {
	if !c.isChild {
		return c.pid
	}
	code := body(c.sys)
	unix.RawSyscall(unix.SYS_EXIT_GROUP, uintptr(code), 0, 0)
	panic("unreachable: exit_group returned")
}

// Fork clones the calling process via a raw SYS_CLONE, the same primitive
// gVisor's stub creation uses (subprocess_linux.go forkStub), because
// syscall.ForkExec only supports "fork then immediately exec" and this
// shell needs "fork, run an arbitrary Go body (a subshell's command list),
// then exit" to implement compound-command subshells (§4.5.2).
//
// The calling goroutine's OS thread is locked for the duration: the clone
// must happen on a thread whose state is otherwise quiescent, matching the
// same precondition the standard library's os/exec fork path relies on.
func (r *RealSystem) Fork() (system.ChildStarter, error) {
	runtime.LockOSThread()
	old, err := beforeFork()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, wrapErrno("fork", err)
	}

	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if errno != 0 {
		afterFork(old)
		runtime.UnlockOSThread()
		return nil, wrapErrno("fork", errno)
	}

	if pid != 0 {
		afterFork(old)
		runtime.UnlockOSThread()
		return &childStarter{pid: system.ProcessID(pid)}, nil
	}

	// Child: restore the inherited mask (fork does not otherwise change
	// signal dispositions — only exec resets caught handlers) and hand
	// control to the caller via Start. The OS thread stays locked; this
	// goroutine is now the entire process. The child observes itself
	// through the same RealSystem value since a real fork duplicated the
	// whole process — Getpid et al. already answer correctly.
	afterFork(old)
	return &childStarter{isChild: true, sys: r}, nil
}
