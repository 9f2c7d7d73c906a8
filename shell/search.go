package shell

import (
	"strings"

	"github.com/shellrt/shellrt/system"
)

// ResolutionKind is the classification §4.5.4's search order resolves a
// command name to.
type ResolutionKind uint8

const (
	ResolutionExternal ResolutionKind = iota
	ResolutionSpecialBuiltin
	ResolutionFunction
	ResolutionBuiltin
)

// Resolution is the result of resolving a command name: a classification
// plus whichever of Path/Cmd is meaningful for that kind.
type Resolution struct {
	Kind ResolutionKind
	Path string  // ResolutionExternal
	Cmd  Command // ResolutionSpecialBuiltin/ResolutionFunction/ResolutionBuiltin
}

// FunctionLookup resolves a shell function by name. Function definitions
// live with the host shell, not the core.
type FunctionLookup func(name string) (Command, bool)

// BuiltinTable resolves a built-in by name. Populated by the host shell;
// the core never hardcodes a builtin name or behavior.
type BuiltinTable map[string]Builtin

// Searcher implements §4.5.4's command-search order.
type Searcher struct {
	sys       system.System
	Functions FunctionLookup
	Builtins  BuiltinTable
}

// NewSearcher creates a Searcher bound to sys, with fn/builtins supplied by
// the host shell.
func NewSearcher(sys system.System, fn FunctionLookup, builtins BuiltinTable) *Searcher {
	return &Searcher{sys: sys, Functions: fn, Builtins: builtins}
}

// Resolve classifies name per §4.5.4's table, searching path for PATH-based
// lookups (External resolution, and the existence check Substitutive
// built-ins require).
func (s *Searcher) Resolve(name, path string) (Resolution, error) {
	if strings.Contains(name, "/") {
		return Resolution{Kind: ResolutionExternal, Path: name}, nil
	}

	if b, ok := s.Builtins[name]; ok && b.Kind == BuiltinSpecial {
		return Resolution{Kind: ResolutionSpecialBuiltin, Cmd: b.Cmd}, nil
	}

	if s.Functions != nil {
		if cmd, ok := s.Functions(name); ok {
			return Resolution{Kind: ResolutionFunction, Cmd: cmd}, nil
		}
	}

	if b, ok := s.Builtins[name]; ok {
		if b.Kind == BuiltinSubstitutive {
			if _, found, err := s.lookupPath(name, path); err != nil {
				return Resolution{}, err
			} else if !found {
				return s.resolveExternal(name, path)
			}
		}
		return Resolution{Kind: ResolutionBuiltin, Cmd: b.Cmd}, nil
	}

	return s.resolveExternal(name, path)
}

func (s *Searcher) resolveExternal(name, path string) (Resolution, error) {
	dir, found, err := s.lookupPath(name, path)
	if err != nil {
		return Resolution{}, err
	}
	if !found {
		return Resolution{}, system.NewErrno("search", system.ErrnoNoEntry, nil)
	}
	return Resolution{Kind: ResolutionExternal, Path: joinPath(dir, name)}, nil
}

// lookupPath implements §4.5.4's PATH search: split on `:` (an empty
// component means the current directory), return the first directory
// containing an executable file of that name.
func (s *Searcher) lookupPath(name, path string) (dir string, found bool, err error) {
	for _, component := range strings.Split(path, ":") {
		if component == "" {
			component = "."
		}
		full := joinPath(component, name)
		info, statErr := s.sys.StatAt(-1, full, true)
		if statErr != nil {
			continue
		}
		if info.IsRegular && info.Mode&0111 != 0 {
			return component, true, nil
		}
	}
	return "", false, nil
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
