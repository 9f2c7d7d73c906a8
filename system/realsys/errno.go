//go:build linux

package realsys

import (
	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

// wrapErrno classifies a raw unix.Errno (or any error wrapping one) into the
// portable system.ErrnoKind the rest of the shell core branches on.
func wrapErrno(op string, err error) error {
	if err == nil {
		return nil
	}
	errno, ok := err.(unix.Errno)
	if !ok {
		return system.NewErrno(op, system.ErrnoOther, err)
	}
	return system.NewErrno(op, classify(errno), errno)
}

func classify(errno unix.Errno) system.ErrnoKind {
	switch errno {
	case unix.EBADF:
		return system.ErrnoBadFD
	case unix.EINTR:
		return system.ErrnoInterrupted
	case unix.ENOENT:
		return system.ErrnoNoEntry
	case unix.ENOTDIR:
		return system.ErrnoNotDirectory
	case unix.EISDIR:
		return system.ErrnoIsDirectory
	case unix.EACCES, unix.EPERM:
		return system.ErrnoPermissionDenied
	case unix.EPIPE:
		return system.ErrnoBrokenPipe
	case unix.EAGAIN:
		return system.ErrnoWouldBlock
	case unix.ESRCH:
		return system.ErrnoNoSuchProcess
	case unix.ECHILD:
		return system.ErrnoNoChild
	case unix.ENOSYS, unix.ENOTSUP:
		return system.ErrnoNotSupported
	case unix.EOVERFLOW:
		return system.ErrnoOverflow
	case unix.EEXIST:
		return system.ErrnoExists
	case unix.EINVAL:
		return system.ErrnoInvalid
	case unix.EMFILE, unix.ENFILE:
		return system.ErrnoTooManyOpenFiles
	case unix.ENOTTY:
		return system.ErrnoNotATerminal
	default:
		return system.ErrnoOther
	}
}
