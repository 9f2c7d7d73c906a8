package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/shellrt/shellrt/rthandle"
	"github.com/shellrt/shellrt/scheduler"
	"github.com/shellrt/shellrt/system"
)

var (
	ErrJobUnowned     = errors.New("shell: job was not started by this shell")
	ErrJobUnmonitored = errors.New("shell: job is not job-controlled")
)

// PathLookup returns the current value of $PATH. Variables live with the
// host shell, not the core, hence the indirection.
type PathLookup func() string

// Executor ties together the pieces L5 threads through every command:
// the runtime handle, job list, trap set, options, redirection stack, and
// command search.
type Executor struct {
	h      *rthandle.Handle
	Jobs   *JobList
	Traps  *TrapSet
	Opts   *Options
	Redirs *RedirStack
	Search *Searcher

	path PathLookup

	lastAsyncPID system.ProcessID
}

// NewExecutor builds the top-level Executor bound to h.
func NewExecutor(h *rthandle.Handle, fn FunctionLookup, builtins BuiltinTable, path PathLookup) *Executor {
	sys := h.System()
	return &Executor{
		h:      h,
		Jobs:   NewJobList(),
		Traps:  NewTrapSet(sys, h.Select()),
		Opts:   &Options{},
		Redirs: NewRedirStack(sys),
		Search: NewSearcher(sys, fn, builtins),
		path:   path,
	}
}

// Sys returns the underlying system.System.
func (ex *Executor) Sys() system.System { return ex.h.System() }

// Handle returns the underlying runtime handle.
func (ex *Executor) Handle() *rthandle.Handle { return ex.h }

// LastAsyncPID is `$!`: the PID most recently backgrounded or resumed.
func (ex *Executor) LastAsyncPID() system.ProcessID { return ex.lastAsyncPID }

func groupTarget(pgid system.ProcessID) system.ProcessID {
	if pgid == 0 {
		return 0
	}
	return -pgid
}

func statusFromHalt(state system.ProcessState) ExitCode {
	switch state.Result.Kind {
	case system.HaltExited:
		return ExitCode(state.Result.Code)
	case system.HaltSignaled:
		return ExitCode(128) + ExitCode(state.Result.Signal.Number&0x7f)
	default:
		return 0
	}
}

func invert(status ExitCode) ExitCode {
	if status == 0 {
		return 1
	}
	return 0
}

// waitChild blocks until pid's job state changes, waking on SIGCHLD
// delivery rather than polling (§4.3's ordering: FD/timer/signal events
// surface together after one select turn; a Wait that returns "no change"
// yet is the expected non-blocking read, so we park on WaitForSignals and
// re-poll).
func (ex *Executor) waitChild(ctx context.Context, pid system.ProcessID) (system.WaitResult, error) {
	sys := ex.Sys()
	for {
		wr, err := sys.Wait(system.WaitTarget{PID: pid})
		if err != nil {
			return system.WaitResult{}, err
		}
		if wr.OK {
			return wr, nil
		}
		if _, err := ex.h.WaitForSignals(ctx); err != nil {
			return system.WaitResult{}, err
		}
	}
}

// maybeErrexit implements §4.5.1's errexit clause: a non-zero, non-diverted
// status under `set -e` diverts to exit. Callers on the left of `&&`/`||`
// or inside a condition should not call this on the intermediate result.
func (ex *Executor) maybeErrexit(res Result) Result {
	if res.Status != 0 && res.Divert.IsNone() && ex.Opts.Get(OptErrexit) {
		return WithDivert(res.Status, Divert{Kind: DivertExit})
	}
	return res
}

// RunPipeline implements §4.5.1. topLevel marks a pipeline that is not
// itself the left/right of a logical operator or a control-structure
// condition, where job-control wrapping and errexit apply.
func (ex *Executor) RunPipeline(ctx context.Context, cmds []Command, negate, topLevel bool) Result {
	if ex.Opts.Get(OptNoexec) && !ex.Opts.Get(OptInteractive) {
		return Ok(0)
	}
	switch len(cmds) {
	case 0:
		return Ok(0)
	case 1:
		res := cmds[0].Run(ctx, ex)
		if negate && res.Divert.IsNone() {
			res.Status = invert(res.Status)
		}
		if topLevel {
			return ex.maybeErrexit(res)
		}
		return res
	}

	var res Result
	if ex.Opts.Get(OptMonitor) && topLevel {
		res = ex.runJobControlledPipeline(ctx, cmds)
	} else {
		res = ex.runMultiStage(ctx, cmds)
	}
	if negate && res.Divert.IsNone() {
		res.Status = invert(res.Status)
	}
	if topLevel {
		return ex.maybeErrexit(res)
	}
	return res
}

// runJobControlledPipeline wraps the whole pipeline in one subshell so it
// can be stopped and resumed as a single job (§4.5.1's top-level case).
func (ex *Executor) runJobControlledPipeline(ctx context.Context, cmds []Command) Result {
	pid, err := ex.forkSubshell(ctx, true, true, func(cctx context.Context, childEx *Executor) ExitCode {
		return childEx.runMultiStage(cctx, cmds).Status
	})
	if err != nil {
		return Ok(1)
	}
	idx := ex.Jobs.Add(Job{
		PID:           pid,
		JobControlled: true,
		Owned:         true,
		State:         system.Running(),
		Name:          pipelineName(cmds),
	})
	status, err := ex.foregroundWait(ctx, idx)
	if err != nil {
		return Ok(1)
	}
	return Ok(status)
}

func pipelineName(cmds []Command) string {
	return fmt.Sprintf("pipeline of %d commands", len(cmds))
}

// runMultiStage implements §4.5.1's "spawn one subshell per command"
// branch, plumbing pipes per the pipe-lifecycle invariant and collapsing
// rules, then reaping: wait for the last stage's status, discard the rest.
func (ex *Executor) runMultiStage(ctx context.Context, cmds []Command) Result {
	sys := ex.Sys()
	n := len(cmds)

	var prevRead system.FD
	havePrevRead := false
	pids := make([]system.ProcessID, 0, n)

	for i, cmd := range cmds {
		haveNext := i < n-1
		var nextRead, writeEnd system.FD
		if haveNext {
			r, w, err := sys.Pipe()
			if err != nil {
				ex.reapDiscard(ctx, pids)
				return Ok(1)
			}
			nextRead, writeEnd = r, w
		}

		curPrevRead, curHavePrevRead := prevRead, havePrevRead
		curCmd := cmd
		curHaveNext := haveNext
		curWriteEnd := writeEnd
		curNextRead := nextRead

		pid, err := ex.forkSubshell(ctx, false, false, func(cctx context.Context, childEx *Executor) ExitCode {
			csys := childEx.Sys()
			if curHavePrevRead {
				src := curPrevRead
				if src == system.Stdout && curHaveNext {
					safe, derr := csys.Dup(src, 10, false)
					if derr == nil {
						csys.Close(src)
						src = safe
					}
				}
				if src != system.Stdin {
					csys.Dup2(src, system.Stdin)
					csys.Close(src)
				}
			}
			if curHaveNext {
				if curWriteEnd != system.Stdout {
					csys.Dup2(curWriteEnd, system.Stdout)
					csys.Close(curWriteEnd)
				}
				csys.Close(curNextRead)
			}
			res := curCmd.Run(cctx, childEx)
			return res.Status
		})
		if curHavePrevRead {
			_ = sys.Close(curPrevRead)
		}
		if haveNext {
			_ = sys.Close(writeEnd)
		}
		if err != nil {
			ex.reapDiscard(ctx, pids)
			return Ok(1)
		}

		pids = append(pids, pid)
		prevRead, havePrevRead = nextRead, haveNext
	}

	last := pids[len(pids)-1]
	ex.reapDiscard(ctx, pids[:len(pids)-1])
	wr, err := ex.waitChild(ctx, last)
	if err != nil {
		return Ok(1)
	}
	return Ok(statusFromHalt(wr.State))
}

func (ex *Executor) reapDiscard(ctx context.Context, pids []system.ProcessID) {
	for _, pid := range pids {
		_, _ = ex.waitChild(ctx, pid)
	}
}

// forkSubshell implements §4.5.2: fork, optionally set a new process group
// and take the terminal foreground in the child, run body, exit with its
// status. The child gets a fresh scheduler.Loop/SelectSystem/Executor
// bound to its own System value (per §4.2's "fresh executor" requirement
// and the ChildStarter contract: body always observes the correctly-scoped
// System, never the parent's).
func (ex *Executor) forkSubshell(ctx context.Context, jobControlled, foreground bool, body func(ctx context.Context, childEx *Executor) ExitCode) (system.ProcessID, error) {
	sys := ex.Sys()
	starter, err := sys.Fork()
	if err != nil {
		return 0, err
	}
	pid := starter.Start(func(self system.System) system.ExitCode {
		return system.ExitCode(ex.runChildBody(ctx, self, jobControlled, foreground, body))
	})
	if jobControlled {
		// Double-set for race safety: both parent and child set the child's
		// pgid, so whichever runs first still establishes it correctly.
		_ = sys.Setpgid(pid, pid)
	}
	return pid, nil
}

func (ex *Executor) runChildBody(ctx context.Context, self system.System, jobControlled, foreground bool, body func(ctx context.Context, childEx *Executor) ExitCode) ExitCode {
	if jobControlled {
		_ = self.Setpgid(0, 0)
		if foreground {
			_ = self.TcSetpgrp(system.Stdin, self.Getpgrp(), true)
		}
	}

	loop, err := scheduler.New(self)
	if err != nil {
		return 1
	}
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(childCtx) }()

	h := rthandle.New(loop, nil)
	defer h.Close()

	childOpts := *ex.Opts
	childEx := &Executor{
		h:      h,
		Jobs:   NewJobList(),
		Traps:  ex.Traps.EnterSubshell(self, loop.Select()),
		Opts:   &childOpts,
		Redirs: NewRedirStack(self),
		Search: NewSearcher(self, ex.Search.Functions, ex.Search.Builtins),
		path:   ex.path,
	}

	status := body(childCtx, childEx)
	cancel()
	<-done
	return status
}

// --- Job control: bg/fg (§4.5.3) ---

// Bg implements the `bg` built-in's per-job logic.
func (ex *Executor) Bg(idx int) (string, error) {
	job, ok := ex.Jobs.Get(idx)
	if !ok {
		return "", ErrJobNotFound
	}
	if !job.Owned {
		return "", ErrJobUnowned
	}
	if !job.JobControlled {
		return "", ErrJobUnmonitored
	}

	name := fmt.Sprintf("[%d] %s", ex.Jobs.Number(idx), job.Name)
	if job.State.IsAlive() {
		cont, ok := ex.Sys().ResolveSignal(system.SIGCONT)
		if !ok {
			return name, system.NewErrno("bg", system.ErrnoInvalid, nil)
		}
		if err := ex.Sys().Kill(groupTarget(job.PID), cont); err != nil {
			return name, err
		}
		running := system.Running()
		job.ExpectedState = &running
	}
	ex.lastAsyncPID = job.PID
	ex.Jobs.Touch(idx)
	return name, nil
}

// Fg implements the `fg` built-in's per-job logic, returning the resumed
// job's exit status.
func (ex *Executor) Fg(ctx context.Context, idx int) (ExitCode, string, error) {
	job, ok := ex.Jobs.Get(idx)
	if !ok {
		return 0, "", ErrJobNotFound
	}
	if !job.Owned {
		return 0, "", ErrJobUnowned
	}
	if !job.JobControlled {
		return 0, "", ErrJobUnmonitored
	}
	name := job.Name

	if job.State.IsAlive() {
		cont, ok := ex.Sys().ResolveSignal(system.SIGCONT)
		if ok {
			_ = ex.Sys().Kill(groupTarget(job.PID), cont)
		}
	}
	status, err := ex.foregroundWait(ctx, idx)
	return status, name, err
}

// foregroundWait implements fg steps 3-7: move the job to the terminal
// foreground (non-blocking tcsetpgrp so the shell doesn't SIGTTOU itself),
// wait until it halts or stops again (ignoring intermediate Running
// reports), move the shell back to the foreground (blocking variant), and
// either remove the job (halted) or leave it current (stopped again).
func (ex *Executor) foregroundWait(ctx context.Context, idx int) (ExitCode, error) {
	job, ok := ex.Jobs.Get(idx)
	if !ok {
		return 0, ErrJobNotFound
	}
	sys := ex.Sys()
	_ = sys.TcSetpgrp(system.Stdin, job.PID, false)

	var final system.WaitResult
	for {
		wr, err := ex.waitChild(ctx, job.PID)
		if err != nil {
			return 0, err
		}
		if !wr.State.Halted {
			continue // Running report; keep waiting for halt or stop
		}
		final = wr
		break
	}

	_ = sys.TcSetpgrp(system.Stdin, sys.Getpgrp(), true)

	job.State = final.State
	if final.State.Result.Kind == system.HaltStopped {
		ex.Jobs.MarkStopped(idx)
		return statusFromHalt(final.State), nil
	}
	ex.Jobs.Remove(idx)
	return statusFromHalt(final.State), nil
}

// --- Loops (§4.5.6) ---

// RunLoop implements while/until. until inverts the success test on cond's
// status.
func (ex *Executor) RunLoop(ctx context.Context, cond, body Command, until bool) Result {
	var lastBodyStatus ExitCode
	for {
		condRes := cond.Run(ctx, ex)
		if !condRes.Divert.IsNone() {
			return Result{Status: condRes.Status, Divert: condRes.Divert}
		}
		success := condRes.Status == 0
		if success == until {
			break
		}

		bodyRes := body.Run(ctx, ex)
		lastBodyStatus = bodyRes.Status
		if bodyRes.Divert.IsNone() {
			continue
		}

		switch bodyRes.Divert.Kind {
		case DivertBreak:
			if bodyRes.Divert.Count <= 1 {
				return Ok(lastBodyStatus)
			}
			return WithDivert(condRes.Status, Divert{Kind: DivertBreak, Count: bodyRes.Divert.Count - 1})
		case DivertLoopContinue:
			if bodyRes.Divert.Count <= 1 {
				continue
			}
			return WithDivert(condRes.Status, Divert{Kind: DivertLoopContinue, Count: bodyRes.Divert.Count - 1})
		default:
			// return/exit/interrupt propagate unchanged with the condition's
			// exit status, not the body's (§4.5.6 point 4).
			return WithDivert(condRes.Status, bodyRes.Divert)
		}
	}
	return Ok(lastBodyStatus)
}
