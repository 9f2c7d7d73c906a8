package shell

import (
	"context"
	"errors"
	"sync"

	"github.com/shellrt/shellrt/scheduler"
	"github.com/shellrt/shellrt/system"
)

var (
	ErrCannotTrapKill   = errors.New("shell: SIGKILL cannot be trapped")
	ErrCannotTrapStop   = errors.New("shell: SIGSTOP cannot be trapped")
	ErrInitiallyIgnored = errors.New("shell: signal was ignored on shell entry")
)

// UserStateKind is the three-way split §3/§4.5.7 describe for a signal's
// shell-visible state.
type UserStateKind uint8

const (
	UserInitiallyDefaulted UserStateKind = iota
	UserInitiallyIgnored
	UserTrapSet
)

// TrapState is the `{action, origin, pending}` record §3 defines: the
// user-configured action, the shell source location it came from (an
// opaque string — location tracking itself belongs to the parser), and
// whether a delivery is awaiting dispatch.
type TrapState struct {
	Action  system.Trap
	Origin  string
	Pending bool
}

// UserState is a signal's shell-level state: either it was left at its
// startup default, it was (and remains) ignored at startup, or the user
// has set an explicit trap.
type UserState struct {
	Kind UserStateKind
	Trap TrapState // meaningful when Kind == UserTrapSet
}

// SignalState is one signal's full trap-set entry (§4.5.7): the
// shell-visible state plus whether an internal handler (e.g. SIGCHLD's
// wait-for-child bookkeeping) currently owns the kernel disposition.
type SignalState struct {
	User                   UserState
	InternalHandlerEnabled bool
}

// TrapSet implements §4.5.7: the mapping from signal to SignalState, with
// the order-sensitive install/probe logic POSIX's "ignored signals stay
// ignored" rule requires. Disposition changes that install or remove a
// catcher go through sel (scheduler.SelectSystem.SetDisposition), which
// enforces the block→catch→unmask / act→unblock ordering from §4.3;
// probing an untouched signal's disposition goes straight to sys, since
// the probe itself is a plain sigaction call with no wait-mask
// implications yet.
type TrapSet struct {
	mu     sync.Mutex
	sys    system.System
	sel    *scheduler.SelectSystem
	states map[int]*SignalState
}

// NewTrapSet creates an empty trap set bound to sys/sel.
func NewTrapSet(sys system.System, sel *scheduler.SelectSystem) *TrapSet {
	return &TrapSet{sys: sys, sel: sel, states: make(map[int]*SignalState)}
}

// SetTrap implements the algorithm in §4.5.7 exactly. overrideIgnore is
// true for interactive shells (which are allowed to relax the
// initially-ignored rule) and false otherwise.
func (t *TrapSet) SetTrap(sig system.Signal, action system.Trap, origin string, overrideIgnore bool) error {
	if sig.Name.Base == system.SIGKILL {
		return ErrCannotTrapKill
	}
	if sig.Name.Base == system.SIGSTOP {
		return ErrCannotTrapStop
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.states[sig.Number]
	if !exists {
		if !overrideIgnore {
			prev, err := t.sys.Sigaction(sig, system.DispositionIgnore)
			if err != nil {
				return err
			}
			if prev == system.DispositionIgnore {
				t.states[sig.Number] = &SignalState{User: UserState{Kind: UserInitiallyIgnored}}
				return ErrInitiallyIgnored
			}
		}
		state = &SignalState{User: UserState{Kind: UserInitiallyDefaulted}}
		t.states[sig.Number] = state
	}

	if state.User.Kind == UserInitiallyIgnored && !overrideIgnore {
		return ErrInitiallyIgnored
	}

	if !state.InternalHandlerEnabled {
		if err := t.sel.SetDisposition(sig, action.Disposition()); err != nil {
			return err
		}
	}

	state.User = UserState{Kind: UserTrapSet, Trap: TrapState{Action: action, Origin: origin}}
	return nil
}

// EnableInternalHandler installs the runtime's own handler for sig (e.g.
// SIGCHLD's wait-for-child bookkeeping), independent of any user trap. The
// kernel disposition becomes Catch regardless of user_state.
func (t *TrapSet) EnableInternalHandler(sig system.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[sig.Number]
	if !ok {
		state = &SignalState{User: UserState{Kind: UserInitiallyDefaulted}}
		t.states[sig.Number] = state
	}
	state.InternalHandlerEnabled = true
	return t.sel.SetDisposition(sig, system.DispositionCatch)
}

// DisableInternalHandlers restores every signal with an enabled internal
// handler to the disposition its user_state implies, clearing the flag.
// Called before exec (§4.5.7 "Disabling internal handlers").
func (t *TrapSet) DisableInternalHandlers() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for num, state := range t.states {
		if !state.InternalHandlerEnabled {
			continue
		}
		state.InternalHandlerEnabled = false
		disp := userDisposition(state.User)
		sig, ok := t.sys.ValidateSignal(num)
		if !ok {
			continue
		}
		if err := t.sel.SetDisposition(sig, disp); err != nil {
			return err
		}
	}
	return nil
}

func userDisposition(u UserState) system.Disposition {
	switch u.Kind {
	case UserInitiallyIgnored:
		return system.DispositionIgnore
	case UserTrapSet:
		return u.Trap.Action.Disposition()
	default:
		return system.DispositionDefault
	}
}

// MarkCaught implements "catching a signal" (§4.5.7): for every signal in
// batch whose trap action is Command, sets pending=true so the next safe
// point dispatches it.
func (t *TrapSet) MarkCaught(batch []system.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sig := range batch {
		state, ok := t.states[sig.Number]
		if !ok || state.User.Kind != UserTrapSet || state.User.Trap.Action.Action != system.TrapCommand {
			continue
		}
		state.User.Trap.Pending = true
	}
}

// TrapRunner executes a trap's shell source, supplied by the host shell
// (the core does not itself interpret shell source).
type TrapRunner func(ctx context.Context, source string) Result

// DispatchPending runs every pending trap command at a safe point (§4.5.7
// "the shell checks and clears pending traps at safe points"), clearing
// every pending flag before running any of them. Returns the first
// non-trivial divert encountered (e.g. `exit` called from inside a trap),
// short-circuiting the remaining traps the same way an ordinary command
// list would; the traps it skips stay cleared and do not run.
func (t *TrapSet) DispatchPending(ctx context.Context, run TrapRunner) Result {
	var pending []TrapState
	t.mu.Lock()
	for _, state := range t.states {
		if state.User.Kind == UserTrapSet && state.User.Trap.Pending {
			pending = append(pending, state.User.Trap)
			state.User.Trap.Pending = false
		}
	}
	t.mu.Unlock()

	last := Ok(0)
	for _, ts := range pending {
		last = run(ctx, ts.Action.Source)
		if !last.Divert.IsNone() {
			return last
		}
	}
	return last
}

// EnterSubshell applies §4.5.7's "subshell entry" rule to a clone of t,
// bound to a different sys/sel (the subshell's own System/SelectSystem,
// per §4.2's "fresh executor" requirement): Command traps revert to
// Default, Ignore persists, internal handlers persist untouched.
func (t *TrapSet) EnterSubshell(childSys system.System, childSel *scheduler.SelectSystem) *TrapSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	child := NewTrapSet(childSys, childSel)
	for num, state := range t.states {
		cs := &SignalState{InternalHandlerEnabled: state.InternalHandlerEnabled}
		reverted := false
		switch state.User.Kind {
		case UserTrapSet:
			if state.User.Trap.Action.Action == system.TrapCommand {
				cs.User = UserState{Kind: UserInitiallyDefaulted}
				reverted = true
			} else {
				cs.User = state.User
			}
		default:
			cs.User = state.User
		}
		child.states[num] = cs

		// A reverted Command trap's kernel disposition must follow its
		// user_state back to Default (P2/§3); otherwise the child keeps
		// catching a signal its shell-visible state says is defaulted. The
		// internal handler, if any, still owns the disposition (mirrors
		// SetTrap's own guard), so leave it alone in that case.
		if reverted && !cs.InternalHandlerEnabled {
			if sig, ok := childSys.ValidateSignal(num); ok {
				_ = childSel.SetDisposition(sig, system.DispositionDefault)
			}
		}
	}
	return child
}

// State returns a copy of sig's current SignalState, for `trap -p`.
func (t *TrapSet) State(sig system.Signal) (SignalState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[sig.Number]
	if !ok {
		return SignalState{}, false
	}
	return *s, true
}
