package shell

// Option names one of the `set -o`/`set +o` toggles the core tracks.
// Unlike the teacher's loopOptions (fixed at Loop construction), these
// mutate for the lifetime of a running shell, so Options exposes
// Get/Set rather than a functional-options constructor.
type Option uint8

const (
	OptAllExport Option = iota
	OptErrexit
	OptMonitor
	OptNoexec
	OptNoglob
	OptNoclobber
	OptNotify
	OptNounset
	OptVerbose
	OptVi
	OptXtrace
	OptIgnoreEOF
	OptInteractive
	OptPrivileged
	optCount
)

// optionNames is the "set -o" human-readable name for each Option, used by
// the host shell's `set -o`/`set +o` printer.
var optionNames = [optCount]string{
	OptAllExport:   "allexport",
	OptErrexit:     "errexit",
	OptMonitor:     "monitor",
	OptNoexec:      "noexec",
	OptNoglob:      "noglob",
	OptNoclobber:   "noclobber",
	OptNotify:      "notify",
	OptNounset:     "nounset",
	OptVerbose:     "verbose",
	OptVi:          "vi",
	OptXtrace:      "xtrace",
	OptIgnoreEOF:   "ignoreeof",
	OptInteractive: "interactive",
	OptPrivileged:  "privileged",
}

func (o Option) String() string {
	if int(o) < len(optionNames) {
		return optionNames[o]
	}
	return "unknown"
}

// LookupOption resolves a `set -o`/`set +o` name to its Option, for the
// host shell's argument parser.
func LookupOption(name string) (Option, bool) {
	for i, n := range optionNames {
		if n == name {
			return Option(i), true
		}
	}
	return 0, false
}

// Options is a bitset of the `set -o` toggles, mutated in place as the
// shell runs (errexit turning on mid-script, monitor toggling, etc.).
type Options struct {
	bits uint32
}

func (o *Options) Get(opt Option) bool {
	return o.bits&(1<<uint(opt)) != 0
}

// Set assigns opt to value and returns the previous value, satisfying P6
// ("set -o opt; set +o opt returns opt to its original state") trivially:
// callers that want round-trip behavior save the previous value.
func (o *Options) Set(opt Option, value bool) bool {
	prev := o.Get(opt)
	if value {
		o.bits |= 1 << uint(opt)
	} else {
		o.bits &^= 1 << uint(opt)
	}
	return prev
}

// All returns every option and its current value, in declaration order,
// for `set -o`/`set +o` with no name (print all).
func (o *Options) All() []OptionState {
	out := make([]OptionState, 0, optCount)
	for i := Option(0); i < optCount; i++ {
		out = append(out, OptionState{Option: i, Value: o.Get(i)})
	}
	return out
}

// OptionState pairs an Option with its current value.
type OptionState struct {
	Option Option
	Value  bool
}
