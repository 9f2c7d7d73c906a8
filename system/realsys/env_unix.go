//go:build linux

package realsys

import (
	"os"
	"os/user"
	"time"

	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

func (r *RealSystem) Getcwd() (string, error) {
	buf := make([]byte, 4096)
	n, err := unix.Getcwd(buf)
	if err != nil {
		return "", wrapErrno("getcwd", err)
	}
	for n > 0 && buf[n-1] == 0 {
		n--
	}
	return string(buf[:n]), nil
}

func (r *RealSystem) Chdir(path string) error {
	if err := unix.Chdir(path); err != nil {
		return wrapErrno("chdir", err)
	}
	return nil
}

// GetpwnamDir resolves a user's home directory via the stdlib's os/user,
// which already speaks NSS-aware passwd lookups (files, and on systems with
// cgo enabled, nsswitch) — reimplementing getpwnam parsing of /etc/passwd
// by hand would silently drop any directory/LDAP-backed account source.
func (r *RealSystem) GetpwnamDir(name string) (string, bool) {
	u, err := user.Lookup(name)
	if err != nil {
		return "", false
	}
	return u.HomeDir, true
}

// ConfstrPath approximates confstr(_CS_PATH): glibc resolves that value
// from build-time configuration, not a syscall, so without cgo there is no
// way to query the live C library's answer. POSIX.1-2017 guarantees
// /bin:/usr/bin is in it; real systems add more, so this also includes the
// common Linux additions.
func (r *RealSystem) ConfstrPath() (string, error) {
	return "/usr/local/bin:/usr/bin:/bin:/usr/local/sbin:/usr/sbin:/sbin", nil
}

// ShellPath resolves the absolute path to this running binary, used when
// relaunching a subshell or when $0 needs to be an absolute path.
func (r *RealSystem) ShellPath() (string, error) {
	if exe, err := os.Executable(); err == nil {
		return exe, nil
	}
	return os.Readlink("/proc/self/exe")
}

// Umask has no read-only query form at the syscall level: the kernel only
// exposes "set mask, return the previous one". A query is implemented by
// setting and immediately restoring.
func (r *RealSystem) Umask(mask int, query bool) int {
	old := unix.Umask(mask)
	if query {
		unix.Umask(old)
	}
	return old
}

var rlimitResource = map[system.Rlimit]int{
	system.RlimitCPU:    unix.RLIMIT_CPU,
	system.RlimitFSize:  unix.RLIMIT_FSIZE,
	system.RlimitData:   unix.RLIMIT_DATA,
	system.RlimitStack:  unix.RLIMIT_STACK,
	system.RlimitCore:   unix.RLIMIT_CORE,
	system.RlimitNoFile: unix.RLIMIT_NOFILE,
	system.RlimitAS:     unix.RLIMIT_AS,
}

func (r *RealSystem) Getrlimit(resource system.Rlimit) (system.RlimitValue, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(rlimitResource[resource], &rlim); err != nil {
		return system.RlimitValue{}, wrapErrno("getrlimit", err)
	}
	return system.RlimitValue{Soft: rlim.Cur, Hard: rlim.Max}, nil
}

func (r *RealSystem) Setrlimit(resource system.Rlimit, value system.RlimitValue) error {
	rlim := unix.Rlimit{Cur: value.Soft, Max: value.Hard}
	if err := unix.Setrlimit(rlimitResource[resource], &rlim); err != nil {
		return wrapErrno("setrlimit", err)
	}
	return nil
}

// clockTicksPerSecond is sysconf(_SC_CLK_TCK), which is 100 on every Linux
// architecture that matters here; there is no raw syscall for it (glibc
// resolves it from build-time configuration, same as confstr above).
const clockTicksPerSecond = 100

func (r *RealSystem) Times() (system.Times, error) {
	var tms unix.Tms
	if _, err := unix.Times(&tms); err != nil {
		return system.Times{}, wrapErrno("times", err)
	}
	toSeconds := func(ticks int64) float64 { return float64(ticks) / clockTicksPerSecond }
	return system.Times{
		SelfUser:       toSeconds(int64(tms.Utime)),
		SelfSystem:     toSeconds(int64(tms.Stime)),
		ChildrenUser:   toSeconds(int64(tms.Cutime)),
		ChildrenSystem: toSeconds(int64(tms.Cstime)),
	}, nil
}

func (r *RealSystem) Now() system.Instant { return time.Now() }
