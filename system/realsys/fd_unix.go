//go:build linux

package realsys

import (
	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

func (r *RealSystem) Pipe() (reader, writer system.FD, err error) {
	var fds [2]int
	if e := unix.Pipe2(fds[:], unix.O_CLOEXEC); e != nil {
		return 0, 0, wrapErrno("pipe", e)
	}
	return system.FD(fds[0]), system.FD(fds[1]), nil
}

func (r *RealSystem) Dup(from, atLeast system.FD, closeOnExec bool) (system.FD, error) {
	flags := 0
	if closeOnExec {
		flags = unix.F_DUPFD_CLOEXEC
	} else {
		flags = unix.F_DUPFD
	}
	fd, _, errno := unix.Syscall(unix.SYS_FCNTL, uintptr(from), uintptr(flags), uintptr(atLeast))
	if errno != 0 {
		return 0, wrapErrno("dup", errno)
	}
	return system.FD(fd), nil
}

func (r *RealSystem) Dup2(from, to system.FD) error {
	if err := unix.Dup3(int(from), int(to), 0); err != nil {
		return wrapErrno("dup2", err)
	}
	return nil
}

func (r *RealSystem) Open(path string, access system.AccessMode, flags system.OpenFlag, mode uint32) (system.FD, error) {
	raw := accessFlag(access) | openFlagBits(flags)
	fd, err := unix.Open(path, raw, mode)
	if err != nil {
		return 0, wrapErrno("open", err)
	}
	return system.FD(fd), nil
}

func accessFlag(access system.AccessMode) int {
	switch access {
	case system.WriteOnly:
		return unix.O_WRONLY
	case system.ReadWrite:
		return unix.O_RDWR
	default:
		return unix.O_RDONLY
	}
}

func openFlagBits(flags system.OpenFlag) int {
	raw := 0
	if flags&system.OpenCreate != 0 {
		raw |= unix.O_CREAT
	}
	if flags&system.OpenExclusive != 0 {
		raw |= unix.O_EXCL
	}
	if flags&system.OpenTruncate != 0 {
		raw |= unix.O_TRUNC
	}
	if flags&system.OpenAppend != 0 {
		raw |= unix.O_APPEND
	}
	if flags&system.OpenCloseOnExec != 0 {
		raw |= unix.O_CLOEXEC
	}
	return raw
}

// OpenAnonymousIn creates an unnamed, unlinked regular file within dir, used
// as the backing store for here-documents. Grounded on O_TMPFILE, the
// Linux-specific flag designed exactly for this.
func (r *RealSystem) OpenAnonymousIn(dir string) (system.FD, error) {
	fd, err := unix.Open(dir, unix.O_TMPFILE|unix.O_RDWR, 0600)
	if err != nil {
		return 0, wrapErrno("open_anonymous", err)
	}
	return system.FD(fd), nil
}

func (r *RealSystem) Close(fd system.FD) error {
	if err := unix.Close(int(fd)); err != nil {
		return wrapErrno("close", err)
	}
	return nil
}

func (r *RealSystem) Read(fd system.FD, buf []byte) (int, error) {
	n, err := unix.Read(int(fd), buf)
	if err != nil {
		return n, wrapErrno("read", err)
	}
	return n, nil
}

func (r *RealSystem) Write(fd system.FD, buf []byte) (int, error) {
	n, err := unix.Write(int(fd), buf)
	if err != nil {
		return n, wrapErrno("write", err)
	}
	return n, nil
}

func (r *RealSystem) Seek(fd system.FD, whence system.Whence, offset int64) (int64, error) {
	n, err := unix.Seek(int(fd), offset, whenceBits(whence))
	if err != nil {
		return 0, wrapErrno("lseek", err)
	}
	return n, nil
}

func whenceBits(w system.Whence) int {
	switch w {
	case system.SeekCur:
		return unix.SEEK_CUR
	case system.SeekEnd:
		return unix.SEEK_END
	default:
		return unix.SEEK_SET
	}
}

func (r *RealSystem) Stat(fd system.FD) (system.FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(fd), &st); err != nil {
		return system.FileInfo{}, wrapErrno("fstat", err)
	}
	return fileInfoFromStat(&st), nil
}

func (r *RealSystem) StatAt(dirFD system.FD, path string, followSymlink bool) (system.FileInfo, error) {
	flags := unix.AT_SYMLINK_NOFOLLOW
	if followSymlink {
		flags = 0
	}
	var st unix.Stat_t
	if err := unix.Fstatat(int(dirFD), path, &st, flags); err != nil {
		return system.FileInfo{}, wrapErrno("fstatat", err)
	}
	return fileInfoFromStat(&st), nil
}

func fileInfoFromStat(st *unix.Stat_t) system.FileInfo {
	mode := st.Mode
	return system.FileInfo{
		IsDir:     mode&unix.S_IFMT == unix.S_IFDIR,
		IsRegular: mode&unix.S_IFMT == unix.S_IFREG,
		IsFifo:    mode&unix.S_IFMT == unix.S_IFIFO,
		Mode:      mode,
		Size:      st.Size,
	}
}

func (r *RealSystem) IsATTY(fd system.FD) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

func (r *RealSystem) SetNonblocking(fd system.FD, nonblocking bool) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, wrapErrno("fcntl_getfl", err)
	}
	previous := flags&unix.O_NONBLOCK != 0
	newFlags := flags
	if nonblocking {
		newFlags |= unix.O_NONBLOCK
	} else {
		newFlags &^= unix.O_NONBLOCK
	}
	if newFlags != flags {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, newFlags); err != nil {
			return previous, wrapErrno("fcntl_setfl", err)
		}
	}
	return previous, nil
}

func (r *RealSystem) CloseOnExec(fd system.FD) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return false, wrapErrno("fcntl_getfd", err)
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

func (r *RealSystem) SetCloseOnExec(fd system.FD, value bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return wrapErrno("fcntl_getfd", err)
	}
	if value {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags); err != nil {
		return wrapErrno("fcntl_setfd", err)
	}
	return nil
}
