//go:build linux

package realsys

import (
	"golang.org/x/sys/unix"

	"github.com/shellrt/shellrt/system"
)

func (r *RealSystem) Exec(path string, argv []string, envp []string) error {
	if err := unix.Exec(path, argv, envp); err != nil {
		return wrapErrno("execve", err)
	}
	panic("unreachable: execve returned without error")
}

func (r *RealSystem) Wait(target system.WaitTarget) (system.WaitResult, error) {
	pid := int(target.PID)
	if target.Any {
		pid = -1
	}
	var status unix.WaitStatus
	got, err := unix.Wait4(pid, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	if err != nil {
		return system.WaitResult{}, wrapErrno("wait4", err)
	}
	if got <= 0 {
		return system.WaitResult{OK: false}, nil
	}
	return system.WaitResult{
		OK:    true,
		PID:   system.ProcessID(got),
		State: stateFromWaitStatus(status),
	}, nil
}

func stateFromWaitStatus(status unix.WaitStatus) system.ProcessState {
	switch {
	case status.Exited():
		return system.Exited(system.ExitCode(status.ExitStatus()))
	case status.Signaled():
		return system.Signaled(signalFromNumber(int(status.Signal())), status.CoreDump())
	case status.Stopped():
		return system.Stopped(signalFromNumber(int(status.StopSignal())))
	case status.Continued():
		return system.Running()
	default:
		return system.Running()
	}
}

func (r *RealSystem) Kill(target system.ProcessID, sig system.Signal) error {
	if err := unix.Kill(int(target), unix.Signal(sig.Number)); err != nil {
		return wrapErrno("kill", err)
	}
	return nil
}

func (r *RealSystem) Getpid() system.ProcessID { return system.ProcessID(unix.Getpid()) }

func (r *RealSystem) Getppid() system.ProcessID { return system.ProcessID(unix.Getppid()) }

func (r *RealSystem) Getpgrp() system.ProcessID {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return r.Getpid()
	}
	return system.ProcessID(pgid)
}

func (r *RealSystem) Setpgid(pid, pgid system.ProcessID) error {
	if err := unix.Setpgid(int(pid), int(pgid)); err != nil {
		return wrapErrno("setpgid", err)
	}
	return nil
}

func (r *RealSystem) TcGetpgrp(fd system.FD) (system.ProcessID, error) {
	pgid, err := unix.IoctlGetInt(int(fd), unix.TIOCGPGRP)
	if err != nil {
		return 0, wrapErrno("tcgetpgrp", err)
	}
	return system.ProcessID(pgid), nil
}

// TcSetpgrp sets the terminal's foreground process group. When blocking is
// false, SIGTTOU is ignored around the ioctl so a background process
// reassigning the foreground group (e.g. a job-control shell moving a job
// to the foreground) does not stop itself, mirroring the convention real
// shells use when they are themselves the ones orphaned from the
// controlling terminal.
func (r *RealSystem) TcSetpgrp(fd system.FD, pgid system.ProcessID, blocking bool) error {
	if !blocking {
		old, err := signalAction(unix.SIGTTOU, unix.SIG_IGN)
		if err == nil {
			defer signalActionRestore(unix.SIGTTOU, old)
		}
	}
	pgidVal := int(pgid)
	if err := unix.IoctlSetPointerInt(int(fd), unix.TIOCSPGRP, pgidVal); err != nil {
		return wrapErrno("tcsetpgrp", err)
	}
	return nil
}
