package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOptions_RoundTrip is property P6: `set -o opt; set +o opt` returns opt
// to its original state.
func TestOptions_RoundTrip(t *testing.T) {
	var o Options
	original := o.Get(OptErrexit)

	o.Set(OptErrexit, true)
	require.True(t, o.Get(OptErrexit))

	prev := o.Set(OptErrexit, original)
	require.True(t, prev)
	require.Equal(t, original, o.Get(OptErrexit))
}

func TestOptions_IndependentBits(t *testing.T) {
	var o Options
	o.Set(OptMonitor, true)
	o.Set(OptNounset, true)

	require.True(t, o.Get(OptMonitor))
	require.True(t, o.Get(OptNounset))
	require.False(t, o.Get(OptVerbose))

	o.Set(OptMonitor, false)
	require.False(t, o.Get(OptMonitor))
	require.True(t, o.Get(OptNounset))
}

func TestOptions_All(t *testing.T) {
	var o Options
	o.Set(OptXtrace, true)

	states := o.All()
	require.Len(t, states, int(optCount))
	for _, s := range states {
		if s.Option == OptXtrace {
			require.True(t, s.Value)
		} else {
			require.False(t, s.Value)
		}
	}
}

func TestLookupOption(t *testing.T) {
	opt, ok := LookupOption("errexit")
	require.True(t, ok)
	require.Equal(t, OptErrexit, opt)

	_, ok = LookupOption("not-an-option")
	require.False(t, ok)
}
