//go:build linux

// Package realsys realizes system.System against the host Linux kernel via
// golang.org/x/sys/unix, the same dependency the teacher's prompt/term
// package uses for terminal syscalls. Every blocking primitive maps onto a
// single raw syscall or a short, well-known sequence (fork via SYS_CLONE,
// wait via Wait4, select via Pselect) rather than a higher-level os.*
// wrapper, because the shell core needs exact control over signal masking
// and process semantics that os.StartProcess does not expose.
package realsys

// RealSystem implements system.System against the current OS process.
// Exactly one RealSystem exists per shell process; its methods are safe to
// call only from the single loop goroutine, except where individually
// documented otherwise (signal delivery is asynchronous by nature, so the
// caught-signal bookkeeping in signal_unix.go is process-global rather than
// a RealSystem field).
type RealSystem struct{}

// New constructs a RealSystem for the current process.
func New() *RealSystem {
	return &RealSystem{}
}
