package shell

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellrt/shellrt/system"
)

func TestJobList_CurrentAndPrevious(t *testing.T) {
	l := NewJobList()
	a := l.Add(Job{PID: 1, Name: "a"})
	b := l.Add(Job{PID: 2, Name: "b"})

	cur, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, b, cur)

	prev, ok := l.Previous()
	require.True(t, ok)
	require.Equal(t, a, prev)
}

func TestJobList_TouchPromotesToCurrent(t *testing.T) {
	l := NewJobList()
	a := l.Add(Job{PID: 1, Name: "a"})
	b := l.Add(Job{PID: 2, Name: "b"})

	l.Touch(a)

	cur, _ := l.Current()
	require.Equal(t, a, cur)
	prev, _ := l.Previous()
	require.Equal(t, b, prev)
}

func TestJobList_ResolveSpecifiers(t *testing.T) {
	l := NewJobList()
	a := l.Add(Job{PID: 1, Name: "sleep 10"})
	b := l.Add(Job{PID: 2, Name: "vi notes.txt"})

	idx, err := l.Resolve("")
	require.NoError(t, err)
	require.Equal(t, b, idx)

	idx, err = l.Resolve("%%")
	require.NoError(t, err)
	require.Equal(t, b, idx)

	idx, err = l.Resolve("%-")
	require.NoError(t, err)
	require.Equal(t, a, idx)

	idx, err = l.Resolve("%1")
	require.NoError(t, err)
	require.Equal(t, a, idx, "job numbers are 1-based: %%1 names the first job")

	idx, err = l.Resolve("%sleep")
	require.NoError(t, err)
	require.Equal(t, a, idx)

	idx, err = l.Resolve("%?notes")
	require.NoError(t, err)
	require.Equal(t, b, idx)

	_, err = l.Resolve("%nosuch")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobList_ResolveAmbiguous(t *testing.T) {
	l := NewJobList()
	l.Add(Job{PID: 1, Name: "make build"})
	l.Add(Job{PID: 2, Name: "make test"})

	_, err := l.Resolve("%make")
	require.ErrorIs(t, err, ErrJobAmbiguous)
}

func TestJobList_RemoveDropsFromRecency(t *testing.T) {
	l := NewJobList()
	a := l.Add(Job{PID: 1, Name: "a"})
	b := l.Add(Job{PID: 2, Name: "b"})

	l.Remove(b)

	_, ok := l.Get(b)
	require.False(t, ok)
	cur, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, a, cur)
}

func TestJob_ExpectedStateSuppression(t *testing.T) {
	j := Job{PID: 5, State: system.Stopped(system.Signal{Name: system.SignalName{Base: system.SIGTSTP}})}
	running := system.Running()
	j.ExpectedState = &running
	require.True(t, j.State.IsAlive())
	require.NotNil(t, j.ExpectedState)
}
