package shell

import (
	"github.com/shellrt/shellrt/system"
)

// RedirKind enumerates the redirection operators §4.5.5 lists.
type RedirKind uint8

const (
	RedirInput       RedirKind = iota // <
	RedirOutput                       // > (create+truncate; noclobber is not checked)
	RedirOutputForce                  // >| (ignores noclobber)
	RedirAppend                       // >>
	RedirReadWrite                    // <>
	RedirDupInput                     // n<&m, or n<&- when DupFD < 0
	RedirDupOutput                    // n>&m, or n>&- when DupFD < 0
	RedirHereDoc                      // << / <<- (content pre-expanded)
	RedirHereString                   // <<<
)

const noPriorFD system.FD = -1

// Redirection is one already-resolved (path/content already expanded)
// redirection request the executor applies.
type Redirection struct {
	Kind    RedirKind
	FD      system.FD // the descriptor being redirected (0, 1, or explicit n)
	Path    string     // RedirInput/Output/OutputForce/Append/ReadWrite
	Mode    uint32     // file creation mode, if a file is opened
	DupFD   system.FD  // RedirDupInput/RedirDupOutput source fd; < 0 means "close instead"
	Content string     // RedirHereDoc/RedirHereString payload
}

// restoreFrame is the snapshot §3 calls a "redirection stack frame":
// either the fd that occupied FD before (to be dup2'd back), or noPriorFD
// if FD was not open at all (to be closed on unwind instead).
type restoreFrame struct {
	FD    system.FD
	Saved system.FD
}

// RedirStack implements §4.5.5: applying a redirection snapshots the fd it
// is about to overwrite, performs the redirection, and pushes a restore
// record; unwinding pops records in reverse, on every exit path from the
// enclosing scope.
type RedirStack struct {
	sys    system.System
	frames []restoreFrame
}

// NewRedirStack creates an empty stack bound to sys.
func NewRedirStack(sys system.System) *RedirStack {
	return &RedirStack{sys: sys}
}

// Apply performs r, snapshotting and pushing a restore frame first.
func (s *RedirStack) Apply(r Redirection) error {
	saved, err := s.snapshot(r.FD)
	if err != nil {
		return err
	}

	if err := s.perform(r); err != nil {
		s.releaseSnapshot(saved)
		return err
	}

	s.frames = append(s.frames, restoreFrame{FD: r.FD, Saved: saved})
	return nil
}

// snapshot dup's the current occupant of fd to a safe, close-on-exec
// descriptor, or returns noPriorFD if fd was not open.
func (s *RedirStack) snapshot(fd system.FD) (system.FD, error) {
	saved, err := s.sys.Dup(fd, 10, true)
	if err != nil {
		if e, ok := err.(*system.Errno); ok && e.Kind == system.ErrnoBadFD {
			return noPriorFD, nil
		}
		return 0, err
	}
	return saved, nil
}

func (s *RedirStack) releaseSnapshot(saved system.FD) {
	if saved != noPriorFD {
		_ = s.sys.Close(saved)
	}
}

func (s *RedirStack) perform(r Redirection) error {
	switch r.Kind {
	case RedirInput:
		return s.openOnto(r.FD, r.Path, system.ReadOnly, 0, r.Mode)
	case RedirOutput:
		return s.openOnto(r.FD, r.Path, system.WriteOnly, system.OpenCreate|system.OpenTruncate, r.Mode)
	case RedirOutputForce:
		return s.openOnto(r.FD, r.Path, system.WriteOnly, system.OpenCreate|system.OpenTruncate, r.Mode)
	case RedirAppend:
		return s.openOnto(r.FD, r.Path, system.WriteOnly, system.OpenCreate|system.OpenAppend, r.Mode)
	case RedirReadWrite:
		return s.openOnto(r.FD, r.Path, system.ReadWrite, system.OpenCreate, r.Mode)
	case RedirDupInput, RedirDupOutput:
		if r.DupFD < 0 {
			return s.sys.Close(r.FD)
		}
		return s.sys.Dup2(r.DupFD, r.FD)
	case RedirHereDoc, RedirHereString:
		return s.hereDoc(r.FD, r.Content)
	default:
		return system.NewErrno("redirect", system.ErrnoInvalid, nil)
	}
}

func (s *RedirStack) openOnto(fd system.FD, path string, access system.AccessMode, flags system.OpenFlag, mode uint32) error {
	if mode == 0 {
		mode = 0666
	}
	opened, err := s.sys.Open(path, access, flags, mode)
	if err != nil {
		return err
	}
	if opened != fd {
		if err := s.sys.Dup2(opened, fd); err != nil {
			_ = s.sys.Close(opened)
			return err
		}
		_ = s.sys.Close(opened)
	}
	return nil
}

// hereDoc implements §6 "an ordinary regular file opened for read and
// write, truncated, with close-on-exec cleared so the subshell inherits
// it": write content, seek back to the start, then dup2 onto fd.
func (s *RedirStack) hereDoc(fd system.FD, content string) error {
	tmp, err := s.sys.OpenAnonymousIn("/tmp")
	if err != nil {
		return err
	}
	defer s.sys.Close(tmp)

	if err := s.sys.SetCloseOnExec(tmp, false); err != nil {
		return err
	}
	if len(content) > 0 {
		if _, err := s.sys.Write(tmp, []byte(content)); err != nil {
			return err
		}
	}
	if _, err := s.sys.Seek(tmp, system.SeekSet, 0); err != nil {
		return err
	}
	return s.sys.Dup2(tmp, fd)
}

// Unwind pops every frame in reverse, restoring the fd table to what it
// was before any Apply call. Must be called on every exit path from the
// scope that pushed the frames, including diverts and signal-caused exits.
func (s *RedirStack) Unwind() {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.Saved == noPriorFD {
			_ = s.sys.Close(f.FD)
			continue
		}
		_ = s.sys.Dup2(f.Saved, f.FD)
		_ = s.sys.Close(f.Saved)
	}
	s.frames = s.frames[:0]
}

// Depth reports how many frames are currently pushed, letting callers
// unwind back to a saved mark (e.g. a function call boundary) instead of
// all the way to empty.
func (s *RedirStack) Depth() int { return len(s.frames) }

// UnwindTo pops frames down to mark (as returned by Depth before pushing
// more), for scopes narrower than the whole stack's lifetime.
func (s *RedirStack) UnwindTo(mark int) {
	for len(s.frames) > mark {
		i := len(s.frames) - 1
		f := s.frames[i]
		if f.Saved == noPriorFD {
			_ = s.sys.Close(f.FD)
		} else {
			_ = s.sys.Dup2(f.Saved, f.FD)
			_ = s.sys.Close(f.Saved)
		}
		s.frames = s.frames[:i]
	}
}
