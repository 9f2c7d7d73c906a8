package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellrt/shellrt/system"
)

// fakeExecSys stubs just StatAt, the only System method Searcher.lookupPath
// calls; embedding the nil interface lets every other method panic loudly
// if something unexpectedly reaches it.
type fakeExecSys struct {
	system.System
	executables map[string]bool
}

func (f *fakeExecSys) StatAt(dirFD system.FD, path string, followSymlink bool) (system.FileInfo, error) {
	if f.executables[path] {
		return system.FileInfo{IsRegular: true, Mode: 0755}, nil
	}
	return system.FileInfo{}, system.NewErrno("statat", system.ErrnoNoEntry, nil)
}

func TestSearcher_ExternalWithSlash(t *testing.T) {
	sys := &fakeExecSys{}
	s := NewSearcher(sys, nil, nil)

	res, err := s.Resolve("./foo", "/usr/bin:/bin")
	require.NoError(t, err)
	require.Equal(t, ResolutionExternal, res.Kind)
	require.Equal(t, "./foo", res.Path)
}

func TestSearcher_SpecialBuiltinPrecedesFunction(t *testing.T) {
	sys := &fakeExecSys{}
	fn := func(name string) (Command, bool) { return nil, name == "exit" }
	s := NewSearcher(sys, fn, BuiltinTable{
		"exit": {Name: "exit", Kind: BuiltinSpecial},
	})

	res, err := s.Resolve("exit", "")
	require.NoError(t, err)
	require.Equal(t, ResolutionSpecialBuiltin, res.Kind)
}

func TestSearcher_FunctionPrecedesOrdinaryBuiltin(t *testing.T) {
	sys := &fakeExecSys{}
	fnCmd := CommandFunc(func(ctx context.Context, ex *Executor) Result { return Ok(0) })
	fn := func(name string) (Command, bool) {
		if name == "cd" {
			return fnCmd, true
		}
		return nil, false
	}
	s := NewSearcher(sys, fn, BuiltinTable{"cd": {Name: "cd", Kind: BuiltinOrdinary}})

	res, err := s.Resolve("cd", "")
	require.NoError(t, err)
	require.Equal(t, ResolutionFunction, res.Kind)
}

func TestSearcher_SubstitutiveRequiresPathExecutable(t *testing.T) {
	sys := &fakeExecSys{executables: map[string]bool{"/bin/echo": true}}
	s := NewSearcher(sys, nil, BuiltinTable{"echo": {Name: "echo", Kind: BuiltinSubstitutive}})

	res, err := s.Resolve("echo", "/usr/bin:/bin")
	require.NoError(t, err)
	require.Equal(t, ResolutionBuiltin, res.Kind)
}

func TestSearcher_SubstitutiveFallsBackToExternalWithoutPathMatch(t *testing.T) {
	sys := &fakeExecSys{}
	s := NewSearcher(sys, nil, BuiltinTable{"echo": {Name: "echo", Kind: BuiltinSubstitutive}})

	_, err := s.Resolve("echo", "/usr/bin:/bin")
	require.Error(t, err)
}

func TestSearcher_PathSearchEmptyComponentMeansCWD(t *testing.T) {
	sys := &fakeExecSys{executables: map[string]bool{"./tool": true}}
	s := NewSearcher(sys, nil, nil)

	res, err := s.Resolve("tool", ":/bin")
	require.NoError(t, err)
	require.Equal(t, ResolutionExternal, res.Kind)
	require.Equal(t, "./tool", res.Path)
}
