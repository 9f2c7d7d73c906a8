package virtsys

import (
	"strings"
	"time"

	"github.com/shellrt/shellrt/system"
)

// System is a system.System bound to one simulated process inside a Kernel.
// It carries no state of its own beyond the (Kernel, pid) pair; every method
// locks the Kernel and operates on that process's vprocess record.
type System struct {
	k   *Kernel
	pid system.ProcessID
}

func errnof(op string, kind system.ErrnoKind) error {
	return system.NewErrno(op, kind, nil)
}

func (s *System) self(k *Kernel) (*vprocess, error) {
	p, ok := k.process(s.pid)
	if !ok {
		return nil, errnof("", system.ErrnoNoSuchProcess)
	}
	return p, nil
}

// --- File descriptor operations ---

func (s *System) Pipe() (system.FD, system.FD, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, 0, err
	}

	node := newFifo(0600)
	node.pipe.readers = 1
	node.pipe.writers = 1
	rd := &openFileDescription{node: node, access: system.ReadOnly, end: pipeEndRead, refs: 1}
	wr := &openFileDescription{node: node, access: system.WriteOnly, end: pipeEndWrite, refs: 1}

	rfd := p.allocFD()
	p.fds[rfd] = &fdEntry{desc: rd}
	wfd := p.allocFD()
	p.fds[wfd] = &fdEntry{desc: wr}
	return rfd, wfd, nil
}

func (s *System) Dup(from system.FD, atLeast system.FD, closeOnExec bool) (system.FD, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}
	entry, ok := p.fds[from]
	if !ok {
		return 0, errnof("dup", system.ErrnoBadFD)
	}
	nfd := atLeast
	for {
		if _, taken := p.fds[nfd]; !taken && nfd >= 0 {
			break
		}
		nfd++
	}
	entry.desc.retain()
	p.fds[nfd] = &fdEntry{desc: entry.desc, closeOnExec: closeOnExec}
	if nfd >= p.nextFD {
		p.nextFD = nfd + 1
	}
	return nfd, nil
}

func (s *System) Dup2(from, to system.FD) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	entry, ok := p.fds[from]
	if !ok {
		return errnof("dup2", system.ErrnoBadFD)
	}
	if from == to {
		return nil
	}
	s.closeEntryLocked(p, to)
	entry.desc.retain()
	p.fds[to] = &fdEntry{desc: entry.desc}
	if to >= p.nextFD {
		p.nextFD = to + 1
	}
	return nil
}

func (s *System) Open(path string, access system.AccessMode, flags system.OpenFlag, mode uint32) (system.FD, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}

	dir, name, ok := resolvePath(k.root, k.cwdInode(p), path)
	if !ok {
		return 0, errnof("open", system.ErrnoNoEntry)
	}
	node, exists := dir.entries[name]
	if !exists {
		if flags&system.OpenCreate == 0 {
			return 0, errnof("open", system.ErrnoNoEntry)
		}
		node = newRegular(mode)
		dir.entries[name] = node
	} else if flags&system.OpenExclusive != 0 {
		return 0, errnof("open", system.ErrnoExists)
	}
	if node.kind == inodeDirectory && access != system.ReadOnly {
		return 0, errnof("open", system.ErrnoIsDirectory)
	}
	if flags&system.OpenTruncate != 0 && node.kind == inodeRegular {
		node.data = nil
	}

	if node.kind == inodeFifo {
		switch access {
		case system.ReadOnly:
			node.pipe.readers++
		case system.WriteOnly:
			node.pipe.writers++
		default:
			node.pipe.readers++
			node.pipe.writers++
		}
	}

	desc := &openFileDescription{node: node, access: access, append: flags&system.OpenAppend != 0, refs: 1}
	if node.kind == inodeFifo {
		if access == system.WriteOnly {
			desc.end = pipeEndWrite
		} else {
			desc.end = pipeEndRead
		}
	}
	fd := p.allocFD()
	p.fds[fd] = &fdEntry{desc: desc, closeOnExec: flags&system.OpenCloseOnExec != 0}
	k.notifyAll()
	return fd, nil
}

// OpenAnonymousIn simulates O_TMPFILE: an unlinked regular inode not
// reachable through the directory tree at all, matching the real backend's
// use for here-documents and other throwaway temp files (§4.5.5).
func (s *System) OpenAnonymousIn(dir string) (system.FD, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}
	node := newRegular(0600)
	desc := &openFileDescription{node: node, access: system.ReadWrite, refs: 1}
	fd := p.allocFD()
	p.fds[fd] = &fdEntry{desc: desc}
	return fd, nil
}

func (s *System) Close(fd system.FD) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	if _, ok := p.fds[fd]; !ok {
		return errnof("close", system.ErrnoBadFD)
	}
	s.closeEntryLocked(p, fd)
	k.notifyAll()
	return nil
}

// closeEntryLocked removes fd from p's table and, if it held the last
// reference to the underlying description, applies the fifo reader/writer
// accounting a real close(2) would.
func (s *System) closeEntryLocked(p *vprocess, fd system.FD) {
	entry, ok := p.fds[fd]
	if !ok {
		return
	}
	delete(p.fds, fd)
	if !entry.desc.release() {
		return
	}
	node := entry.desc.node
	if node.kind != inodeFifo {
		return
	}
	switch entry.desc.end {
	case pipeEndRead:
		node.pipe.readers--
	case pipeEndWrite:
		node.pipe.writers--
	}
}

func (s *System) Read(fd system.FD, buf []byte) (int, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return 0, errnof("read", system.ErrnoBadFD)
	}
	node := entry.desc.node
	switch node.kind {
	case inodeFifo:
		if entry.desc.end != pipeEndRead {
			return 0, errnof("read", system.ErrnoInvalid)
		}
		n, eof := node.pipe.read(buf)
		if n == 0 && !eof {
			return 0, system.ErrWouldBlock
		}
		if n > 0 {
			k.notifyAll()
		}
		return n, nil
	case inodeDirectory:
		return 0, errnof("read", system.ErrnoIsDirectory)
	default:
		if entry.desc.offset >= int64(len(node.data)) {
			return 0, nil
		}
		n := copy(buf, node.data[entry.desc.offset:])
		entry.desc.offset += int64(n)
		return n, nil
	}
}

func (s *System) Write(fd system.FD, buf []byte) (int, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return 0, errnof("write", system.ErrnoBadFD)
	}
	node := entry.desc.node
	switch node.kind {
	case inodeFifo:
		if entry.desc.end != pipeEndWrite {
			return 0, errnof("write", system.ErrnoInvalid)
		}
		n, result := node.pipe.write(buf)
		switch result {
		case writeAgain:
			return 0, system.ErrWouldBlock
		case writeBrokenPipe:
			return 0, system.ErrBrokenPipe
		default:
			if n > 0 {
				k.notifyAll()
			}
			return n, nil
		}
	case inodeDirectory:
		return 0, errnof("write", system.ErrnoIsDirectory)
	default:
		if entry.desc.append {
			entry.desc.offset = int64(len(node.data))
		}
		end := entry.desc.offset + int64(len(buf))
		if end > int64(len(node.data)) {
			grown := make([]byte, end)
			copy(grown, node.data)
			node.data = grown
		}
		copy(node.data[entry.desc.offset:], buf)
		entry.desc.offset = end
		return len(buf), nil
	}
}

func (s *System) Seek(fd system.FD, whence system.Whence, offset int64) (int64, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return 0, errnof("lseek", system.ErrnoBadFD)
	}
	if entry.desc.node.kind != inodeRegular {
		return 0, errnof("lseek", system.ErrnoInvalid)
	}
	var base int64
	switch whence {
	case system.SeekSet:
		base = 0
	case system.SeekCur:
		base = entry.desc.offset
	case system.SeekEnd:
		base = int64(len(entry.desc.node.data))
	}
	entry.desc.offset = base + offset
	return entry.desc.offset, nil
}

func fileInfo(n *inode) system.FileInfo {
	return system.FileInfo{
		IsDir:     n.kind == inodeDirectory,
		IsRegular: n.kind == inodeRegular,
		IsFifo:    n.kind == inodeFifo,
		Mode:      n.mode,
		Size:      n.size(),
	}
}

func (s *System) Stat(fd system.FD) (system.FileInfo, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return system.FileInfo{}, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return system.FileInfo{}, errnof("fstat", system.ErrnoBadFD)
	}
	return fileInfo(entry.desc.node), nil
}

func (s *System) StatAt(dirFD system.FD, path string, followSymlink bool) (system.FileInfo, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return system.FileInfo{}, err
	}
	n, ok := k.lookup(p, path)
	if !ok {
		return system.FileInfo{}, errnof("stat", system.ErrnoNoEntry)
	}
	return fileInfo(n), nil
}

// IsATTY always reports false: the virtual backend models no terminal
// device, so job-control paths that branch on "are we interactive" take
// the non-interactive path under simulation.
func (s *System) IsATTY(fd system.FD) bool { return false }

func (s *System) SetNonblocking(fd system.FD, nonblocking bool) (bool, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return false, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return false, errnof("fcntl", system.ErrnoBadFD)
	}
	prev := entry.desc.nonblocking
	entry.desc.nonblocking = nonblocking
	return prev, nil
}

func (s *System) CloseOnExec(fd system.FD) (bool, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return false, err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return false, errnof("fcntl", system.ErrnoBadFD)
	}
	return entry.closeOnExec, nil
}

func (s *System) SetCloseOnExec(fd system.FD, value bool) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	entry, ok := p.fds[fd]
	if !ok {
		return errnof("fcntl", system.ErrnoBadFD)
	}
	entry.closeOnExec = value
	return nil
}

// --- Process operations ---

// childStarter is virtsys's ChildStarter: unlike the real backend there is
// no parent/child branch on return from Fork, since nothing actually forks.
// Start always runs body on a new goroutine scoped to the child's pid and
// returns the child's pid immediately to the caller, simulating the
// parent's view of a successful fork() without blocking on the child.
type childStarter struct {
	k   *Kernel
	pid system.ProcessID
}

func (c *childStarter) Start(body func(self system.System) system.ExitCode) system.ProcessID {
	child := &System{k: c.k, pid: c.pid}
	go func() {
		code := body(child)
		c.k.mu.Lock()
		if p, ok := c.k.process(c.pid); ok {
			p.state = system.Exited(code)
		}
		parentPid, hasParent := c.parent()
		c.k.mu.Unlock()
		if hasParent {
			c.k.deliverSignal(parentPid, system.SIGCHLD)
		}
	}()
	return c.pid
}

func (c *childStarter) parent() (system.ProcessID, bool) {
	p, ok := c.k.process(c.pid)
	if !ok {
		return 0, false
	}
	return p.parent, true
}

func (s *System) Fork() (system.ChildStarter, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	parent, err := s.self(k)
	if err != nil {
		return nil, err
	}

	childPid := system.ProcessID(k.nextPid)
	k.nextPid++
	child := newProcess(childPid, s.pid, parent.pgid)
	child.umask = parent.umask
	child.cwd = parent.cwd
	child.controllingTTY = parent.controllingTTY
	for sig, disp := range parent.dispositions {
		child.dispositions[sig] = disp
	}
	child.blocked = parent.blocked.Clone()
	for fd, entry := range parent.fds {
		entry.desc.retain()
		child.fds[fd] = &fdEntry{desc: entry.desc, closeOnExec: entry.closeOnExec}
	}
	child.nextFD = parent.nextFD
	for res, v := range parent.rlimits {
		child.rlimits[res] = v
	}

	k.processes[childPid] = child
	parent.children = append(parent.children, childPid)
	return &childStarter{k: k, pid: childPid}, nil
}

// Exec replaces the calling process's image. The virtual backend has no
// binaries to load, so it simulates exec failure unless path names a node
// explicitly marked executable (tests set this up directly on the virtual
// filesystem); a successful Exec resets fds marked close-on-exec and the
// signal-catch dispositions back to default, same as a real exec(2).
func (s *System) Exec(path string, argv []string, envp []string) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	n, ok := k.lookup(p, path)
	if !ok {
		return errnof("exec", system.ErrnoNoEntry)
	}
	if n.kind != inodeRegular || !n.nativeExecutable {
		return errnof("exec", system.ErrnoPermissionDenied)
	}
	for fd, entry := range p.fds {
		if entry.closeOnExec {
			s.closeEntryLocked(p, fd)
		}
	}
	for sig, disp := range p.dispositions {
		if disp == system.DispositionCatch {
			p.dispositions[sig] = system.DispositionDefault
		}
	}
	p.caught = nil
	return nil
}

func (s *System) Wait(target system.WaitTarget) (system.WaitResult, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return system.WaitResult{}, err
	}
	if len(p.children) == 0 {
		return system.WaitResult{}, system.ErrNoChild
	}
	for _, cpid := range p.children {
		child, ok := k.process(cpid)
		if !ok {
			continue
		}
		if !target.Any && target.PID > 0 && child.pid != target.PID {
			continue
		}
		if !target.Any && target.PID == 0 && child.pgid != p.pgid {
			continue
		}
		if child.state.Halted {
			if child.state.Result.Kind != system.HaltStopped {
				k.reap(p, cpid)
			}
			return system.WaitResult{OK: true, PID: cpid, State: child.state}, nil
		}
	}
	return system.WaitResult{}, nil
}

func (k *Kernel) reap(parent *vprocess, pid system.ProcessID) {
	delete(k.processes, pid)
	for i, c := range parent.children {
		if c == pid {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
}

// deliverSignal applies target's disposition for sig: Default terminates or
// stops the process per a simplified table ("stop" for STOP/TSTP/TTIN/TTOU,
// "continue" for CONT, no effect for CHLD/URG/WINCH, "terminate" for every
// other signal), Ignore is a no-op, Catch appends to the caught list for
// DrainCaughtSignals to pick up.
func (k *Kernel) deliverSignal(pid system.ProcessID, base system.SignalBase) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.process(pid)
	if !ok || p.state.Halted {
		return
	}
	num := virtualSignalNumbers[base]
	sig := virtualSignalFromNumber(num)
	k.applyDispositionLocked(p, sig)
	k.cond.Broadcast()
}

func (k *Kernel) applyDispositionLocked(p *vprocess, sig system.Signal) {
	disp := p.dispositions[sig.Number]
	switch disp {
	case system.DispositionIgnore:
		return
	case system.DispositionCatch:
		p.caught = append(p.caught, sig)
		return
	default:
		switch sig.Name.Base {
		case system.SIGSTOP, system.SIGTSTP, system.SIGTTIN, system.SIGTTOU:
			p.state = system.Stopped(sig)
		case system.SIGCONT:
			p.state = system.Running()
		case system.SIGCHLD, system.SIGURG, system.SIGWINCH:
			// ignored by default
		default:
			p.state = system.Signaled(sig, false)
		}
	}
}

func (s *System) Kill(target system.ProcessID, sig system.Signal) error {
	k := s.k
	k.mu.Lock()
	if target == -1 {
		for _, p := range k.processes {
			k.applyDispositionLocked(p, sig)
		}
		k.cond.Broadcast()
		k.mu.Unlock()
		return nil
	}
	if target.IsGroup() || target == 0 {
		group := target.Group()
		if target == 0 {
			self, err := s.self(k)
			if err != nil {
				k.mu.Unlock()
				return err
			}
			group = self.pgid
		}
		for _, p := range k.processes {
			if p.pgid == group {
				k.applyDispositionLocked(p, sig)
			}
		}
		k.cond.Broadcast()
		k.mu.Unlock()
		return nil
	}
	p, ok := k.process(target)
	if !ok {
		k.mu.Unlock()
		return errnof("kill", system.ErrnoNoSuchProcess)
	}
	k.applyDispositionLocked(p, sig)
	k.cond.Broadcast()
	k.mu.Unlock()
	return nil
}

func (s *System) Getpid() system.ProcessID { return s.pid }

func (s *System) Getppid() system.ProcessID {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0
	}
	return p.parent
}

func (s *System) Getpgrp() system.ProcessID {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0
	}
	return p.pgid
}

func (s *System) Setpgid(pid, pgid system.ProcessID) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	target := pid
	if target == 0 {
		target = s.pid
	}
	p, ok := k.process(target)
	if !ok {
		return errnof("setpgid", system.ErrnoNoSuchProcess)
	}
	group := pgid
	if group == 0 {
		group = target
	}
	p.pgid = group
	return nil
}

func (s *System) TcGetpgrp(fd system.FD) (system.ProcessID, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fgPgrp, nil
}

func (s *System) TcSetpgrp(fd system.FD, pgid system.ProcessID, blocking bool) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	k.fgPgrp = pgid
	k.cond.Broadcast()
	return nil
}

// --- Signal operations ---

func (s *System) Sigmask(op system.SigmaskOp, set system.SignalSet, out *system.SignalSet) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	if out != nil {
		*out = p.blocked.Clone()
	}
	switch op {
	case system.SigmaskSet:
		p.blocked = set.Clone()
	case system.SigmaskAdd:
		for n := range set {
			p.blocked.Add(n)
		}
	case system.SigmaskRemove:
		for n := range set {
			p.blocked.Remove(n)
		}
	}
	return nil
}

func (s *System) Sigaction(sig system.Signal, disp system.Disposition) (system.Disposition, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return system.DispositionDefault, err
	}
	prev := p.dispositions[sig.Number]
	p.dispositions[sig.Number] = disp
	if disp != system.DispositionCatch {
		// Switching away from Catch drops anything already queued for the
		// old handler, matching a real sigaction(SIG_DFL/SIG_IGN) racing
		// with delivery: nothing is left half-handled.
		filtered := p.caught[:0]
		for _, c := range p.caught {
			if c.Number != sig.Number {
				filtered = append(filtered, c)
			}
		}
		p.caught = filtered
	}
	return prev, nil
}

func (s *System) DrainCaughtSignals() []system.Signal {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return nil
	}
	out := p.caught
	p.caught = nil
	return out
}

// --- Time ---

func (s *System) Now() system.Instant {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.clock
}

func (s *System) Times() (system.Times, error) {
	return system.Times{}, nil
}

// --- Waiting primitive ---

// Select implements the pselect contract against simulated readiness: a
// fifo read end is ready if it has buffered data or every writer has
// closed (EOF); a write end is ready if it has free space or every reader
// has closed (so the next Write observes ErrBrokenPipe immediately rather
// than blocking forever). Blocking is real blocking on a condition
// variable broadcast by every mutation that could change readiness — not a
// busy loop — so this genuinely suspends the calling goroutine the same
// way a real pselect(2) suspends a thread. signalMask is not applied: this
// backend never holds back a blocked signal, so any caught signal ends the
// wait with ErrInterrupted.
func (s *System) Select(readers, writers *[]system.FD, timeout *time.Duration, signalMask *system.SignalSet) (int, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0, err
	}

	var deadline time.Time
	hasDeadline := timeout != nil
	if hasDeadline {
		deadline = k.clock.Add(*timeout)
	}

	for {
		readyR, readyW, bad := k.checkReadiness(p, *readers, *writers)
		if bad {
			*readers, *writers = nil, nil
			return 0, errnof("pselect", system.ErrnoBadFD)
		}
		if len(p.caught) > 0 {
			*readers, *writers = readyR, readyW
			return len(readyR) + len(readyW), system.ErrInterrupted
		}
		if n := len(readyR) + len(readyW); n > 0 {
			*readers, *writers = readyR, readyW
			return n, nil
		}
		if hasDeadline && !k.clock.Before(deadline) {
			*readers, *writers = nil, nil
			return 0, nil
		}
		k.cond.Wait()
	}
}

func (k *Kernel) checkReadiness(p *vprocess, readers, writers []system.FD) (readyR, readyW []system.FD, bad bool) {
	for _, fd := range readers {
		entry, ok := p.fds[fd]
		if !ok {
			return nil, nil, true
		}
		if fdReadable(entry.desc) {
			readyR = append(readyR, fd)
		}
	}
	for _, fd := range writers {
		entry, ok := p.fds[fd]
		if !ok {
			return nil, nil, true
		}
		if fdWritable(entry.desc) {
			readyW = append(readyW, fd)
		}
	}
	return readyR, readyW, false
}

func fdReadable(d *openFileDescription) bool {
	switch d.node.kind {
	case inodeFifo:
		return d.node.pipe.len() > 0 || d.node.pipe.writers == 0
	default:
		return true
	}
}

func fdWritable(d *openFileDescription) bool {
	switch d.node.kind {
	case inodeFifo:
		return d.node.pipe.free() > 0 || d.node.pipe.readers == 0
	default:
		return true
	}
}

// --- Environment glue ---

func (s *System) Getcwd() (string, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return "", err
	}
	return p.cwd, nil
}

func (s *System) Chdir(path string) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	n, ok := k.lookup(p, path)
	if !ok || n.kind != inodeDirectory {
		return errnof("chdir", system.ErrnoNotDirectory)
	}
	if strings.HasPrefix(path, "/") {
		p.cwd = path
	} else {
		p.cwd = strings.TrimSuffix(p.cwd, "/") + "/" + path
	}
	return nil
}

// GetpwnamDir looks up a user's home directory. The virtual backend has no
// passwd database; tests that need ~user expansion pre-populate a fixed
// table instead, so this always reports "not found".
func (s *System) GetpwnamDir(user string) (string, bool) { return "", false }

func (s *System) ConfstrPath() (string, error) { return "/usr/bin:/bin", nil }

func (s *System) ShellPath() (string, error) { return "/bin/shellrt", nil }

func (s *System) Umask(mask int, query bool) int {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return 0
	}
	prev := p.umask
	if !query {
		p.umask = mask
	}
	return prev
}

func (s *System) Getrlimit(resource system.Rlimit) (system.RlimitValue, error) {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return system.RlimitValue{}, err
	}
	return p.rlimits[resource], nil
}

func (s *System) Setrlimit(resource system.Rlimit, value system.RlimitValue) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := s.self(k)
	if err != nil {
		return err
	}
	cur := p.rlimits[resource]
	if value.Soft > cur.Hard || value.Hard > cur.Hard {
		return errnof("setrlimit", system.ErrnoPermissionDenied)
	}
	p.rlimits[resource] = value
	return nil
}
