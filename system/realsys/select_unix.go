//go:build linux

package realsys

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

func fdSetAdd(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << uint(fd%64)
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<uint(fd%64)) != 0
}

// Select wraps pselect(2) directly: the signal mask it installs is atomic
// with the wait, closing the race a separate "check pending signals, then
// block" sequence would have (§4.3). Note that for signals this shell
// actually catches, wakeup in practice also arrives via the os/signal
// machinery in signal_unix.go — see its doc comment for why Go's lack of a
// cgo-free custom sigaction handler makes that the only viable delivery
// path, with the pselect mask retained for its effect on signals this
// process has not installed a Go-level handler for.
func (r *RealSystem) Select(readers, writers *[]system.FD, timeout *time.Duration, signalMask *system.SignalSet) (int, error) {
	var rset, wset unix.FdSet
	nfd := 0
	for _, fd := range *readers {
		fdSetAdd(&rset, int(fd))
		if int(fd)+1 > nfd {
			nfd = int(fd) + 1
		}
	}
	for _, fd := range *writers {
		fdSetAdd(&wset, int(fd))
		if int(fd)+1 > nfd {
			nfd = int(fd) + 1
		}
	}

	var ts *unix.Timespec
	if timeout != nil {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	var sigset *unix.Sigset_t
	if signalMask != nil {
		var s unix.Sigset_t
		for n := range *signalMask {
			addToSigset(&s, n)
		}
		sigset = &s
	}

	n, err := unix.Pselect(nfd, &rset, &wset, nil, ts, sigset)
	if err != nil {
		return 0, wrapErrno("pselect", err)
	}

	readyReaders := (*readers)[:0]
	for _, fd := range *readers {
		if fdSetIsSet(&rset, int(fd)) {
			readyReaders = append(readyReaders, fd)
		}
	}
	readyWriters := (*writers)[:0]
	for _, fd := range *writers {
		if fdSetIsSet(&wset, int(fd)) {
			readyWriters = append(readyWriters, fd)
		}
	}
	*readers = readyReaders
	*writers = readyWriters
	return n, nil
}
