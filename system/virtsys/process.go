package virtsys

import "github.com/shellrt/shellrt/system"

// vprocess is the virtual backend's per-process record: "everything about
// a simulated process" per §3 — parent PID, PGID, uid/gid, umask, cwd, fd
// table, signal dispositions, blocked set, pending set, caught-but-
// undelivered list, resource limits, and resumption wakers. Every read and
// write goes through the owning Kernel's mutex; vprocess itself holds none.
type vprocess struct {
	pid    system.ProcessID
	parent system.ProcessID
	pgid   system.ProcessID
	uid    int
	gid    int
	umask  int
	cwd    string

	fds    map[system.FD]*fdEntry
	nextFD system.FD

	dispositions map[int]system.Disposition
	blocked      system.SignalSet
	pending      system.SignalSet
	caught       []system.Signal

	rlimits map[system.Rlimit]system.RlimitValue

	state    system.ProcessState
	children []system.ProcessID

	// controllingTTY is the FD (in this process's own table) of the
	// terminal it is attached to, if any; TcGetpgrp/TcSetpgrp operate
	// against the fgPgrp recorded on the Kernel regardless of which
	// process's fd the caller names, mirroring a real single controlling
	// terminal per session.
	controllingTTY system.FD
}

func newProcess(pid, parent, pgid system.ProcessID) *vprocess {
	return &vprocess{
		pid:          pid,
		parent:       parent,
		pgid:         pgid,
		umask:        022,
		cwd:          "/",
		fds:          make(map[system.FD]*fdEntry),
		nextFD:       3,
		dispositions: make(map[int]system.Disposition),
		blocked:      system.NewSignalSet(),
		pending:      system.NewSignalSet(),
		rlimits:      defaultRlimits(),
		state:        system.Running(),
	}
}

func defaultRlimits() map[system.Rlimit]system.RlimitValue {
	unlimited := system.RlimitValue{Soft: system.RlimitInfinity, Hard: system.RlimitInfinity}
	return map[system.Rlimit]system.RlimitValue{
		system.RlimitCPU:    unlimited,
		system.RlimitFSize:  unlimited,
		system.RlimitData:   unlimited,
		system.RlimitStack:  {Soft: 8 << 20, Hard: system.RlimitInfinity},
		system.RlimitCore:   {Soft: 0, Hard: system.RlimitInfinity},
		system.RlimitNoFile: {Soft: 1024, Hard: 4096},
		system.RlimitAS:     unlimited,
	}
}

func (p *vprocess) allocFD() system.FD {
	for {
		fd := p.nextFD
		p.nextFD++
		if _, taken := p.fds[fd]; !taken {
			return fd
		}
	}
}
