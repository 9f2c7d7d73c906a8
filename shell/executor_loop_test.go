package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// statusSeq returns a Command that yields successive statuses from seq on
// each Run, failing the test if called more times than len(seq).
func statusSeq(t *testing.T, seq []ExitCode) Command {
	i := 0
	return CommandFunc(func(ctx context.Context, ex *Executor) Result {
		require.Less(t, i, len(seq), "command run more times than expected")
		s := seq[i]
		i++
		return Ok(s)
	})
}

func TestRunLoop_WhileRunsUntilConditionFails(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{0, 0, 1})
	var bodyRuns int
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		bodyRuns++
		return Ok(7)
	})

	res := ex.RunLoop(context.Background(), cond, body, false)
	require.True(t, res.Divert.IsNone())
	require.Equal(t, ExitCode(7), res.Status)
	require.Equal(t, 2, bodyRuns)
}

func TestRunLoop_UntilInvertsCondition(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{1, 0})
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		return Ok(3)
	})

	res := ex.RunLoop(context.Background(), cond, body, true)
	require.True(t, res.Divert.IsNone())
	require.Equal(t, ExitCode(3), res.Status)
}

func TestRunLoop_BreakTerminatesWithBodyStatus(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{0})
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		return WithDivert(5, Divert{Kind: DivertBreak, Count: 1})
	})

	res := ex.RunLoop(context.Background(), cond, body, false)
	require.True(t, res.Divert.IsNone())
	require.Equal(t, ExitCode(5), res.Status)
}

func TestRunLoop_NestedBreakDecrementsAndPropagates(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{0})
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		return WithDivert(5, Divert{Kind: DivertBreak, Count: 2})
	})

	res := ex.RunLoop(context.Background(), cond, body, false)
	require.Equal(t, DivertBreak, res.Divert.Kind)
	require.Equal(t, 1, res.Divert.Count)
}

func TestRunLoop_ContinueResumesLoop(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{0, 0, 1})
	var bodyRuns int
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		bodyRuns++
		if bodyRuns == 1 {
			return WithDivert(2, Divert{Kind: DivertLoopContinue, Count: 1})
		}
		return Ok(9)
	})

	res := ex.RunLoop(context.Background(), cond, body, false)
	require.True(t, res.Divert.IsNone())
	require.Equal(t, ExitCode(9), res.Status)
	require.Equal(t, 2, bodyRuns)
}

func TestRunLoop_ReturnPropagatesWithConditionStatus(t *testing.T) {
	var ex *Executor
	cond := statusSeq(t, []ExitCode{0})
	body := CommandFunc(func(ctx context.Context, ex *Executor) Result {
		return WithDivert(99, Divert{Kind: DivertReturn})
	})

	res := ex.RunLoop(context.Background(), cond, body, false)
	require.Equal(t, DivertReturn, res.Divert.Kind)
	require.Equal(t, ExitCode(0), res.Status) // condition's status, not the body's 99
}
