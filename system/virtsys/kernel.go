package virtsys

import (
	"strings"
	"sync"
	"time"

	"github.com/shellrt/shellrt/system"
)

// Kernel is the spec's virtual SystemState: a map PID→Process, a file
// system tree, the current (manually advanced) time, and the foreground
// process group. Per §4.2 it is "held behind a single-threaded shared
// cell"; here that is a plain sync.Mutex rather than a literal single
// goroutine, since Go tests legitimately drive it from multiple goroutines
// (e.g. simulating two processes signalling each other) — every mutation
// point still enforces the same invariants a single-threaded cell would.
type Kernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	processes map[system.ProcessID]*vprocess
	nextPid   int32

	root  *inode
	clock time.Time

	fgPgrp system.ProcessID
}

// NewKernel creates an empty virtual kernel with a single root process
// (pid 1, its own session and process group leader) and an empty root
// directory.
func NewKernel() *Kernel {
	k := &Kernel{
		processes: make(map[system.ProcessID]*vprocess),
		root:      newDirectory(),
		clock:     time.Unix(0, 0).UTC(),
	}
	init := newProcess(1, 0, 1)
	k.processes[1] = init
	k.fgPgrp = 1
	k.nextPid = 2
	k.cond = sync.NewCond(&k.mu)
	return k
}

// AdvanceClock moves the fake clock forward by d, the test hook §9's Open
// Question resolution calls for: the default is manual advancement, with
// this method as the explicit hook. Select waiters re-check readiness
// (including deadline expiry) against every state change, so advancing the
// clock past a pending timeout wakes whoever is waiting on it.
func (k *Kernel) AdvanceClock(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clock = k.clock.Add(d)
	k.cond.Broadcast()
}

// notifyAll wakes every goroutine blocked in Select against this kernel.
// Called after any mutation that could make a waiter's condition true:
// pipe writes/closes, signal delivery, process state changes.
func (k *Kernel) notifyAll() { k.cond.Broadcast() }

// NewProcessSystem returns a System bound to a freshly created process,
// used to seed a test scenario's first "shell process" (pid 1 is the
// kernel's own init process; most tests want a separate top-level shell).
func (k *Kernel) NewProcessSystem() *System {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid := system.ProcessID(k.nextPid)
	k.nextPid++
	p := newProcess(pid, 1, pid)
	k.processes[pid] = p
	k.processes[1].children = append(k.processes[1].children, pid)
	return &System{k: k, pid: pid}
}

func (k *Kernel) process(pid system.ProcessID) (*vprocess, bool) {
	p, ok := k.processes[pid]
	return p, ok
}

func resolvePath(root, cwd *inode, path string) (*inode, string, bool) {
	dir := root
	if !strings.HasPrefix(path, "/") {
		dir = cwd
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return dir, "", true
	}
	for _, part := range parts[:len(parts)-1] {
		if part == "" || part == "." {
			continue
		}
		next, ok := dir.entries[part]
		if !ok || next.kind != inodeDirectory {
			return nil, "", false
		}
		dir = next
	}
	return dir, parts[len(parts)-1], true
}

func (k *Kernel) lookup(p *vprocess, path string) (*inode, bool) {
	dir, name, ok := resolvePath(k.root, k.cwdInode(p), path)
	if !ok {
		return nil, false
	}
	if name == "" {
		return dir, true
	}
	n, ok := dir.entries[name]
	return n, ok
}

func (k *Kernel) cwdInode(p *vprocess) *inode {
	dir := k.root
	if p.cwd == "/" || p.cwd == "" {
		return dir
	}
	for _, part := range strings.Split(strings.Trim(p.cwd, "/"), "/") {
		if part == "" {
			continue
		}
		next, ok := dir.entries[part]
		if !ok {
			return k.root
		}
		dir = next
	}
	return dir
}
