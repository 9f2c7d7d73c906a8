package shell

import "context"

// Command is the narrow interface the core consumes from the (external)
// parser/expansion pipeline: an already-parsed, already-expanded unit of
// work the executor can run. Parsing, word expansion, and pattern matching
// are explicitly out of scope (§1); this is the seam.
type Command interface {
	// Run executes the command against ex, which supplies the System, job
	// list, trap set, options, and redirection stack it needs.
	Run(ctx context.Context, ex *Executor) Result
}

// CommandFunc adapts a plain function to Command, the same shape builtins
// and ad-hoc test commands use.
type CommandFunc func(ctx context.Context, ex *Executor) Result

func (f CommandFunc) Run(ctx context.Context, ex *Executor) Result { return f(ctx, ex) }

// Builtin is a Command annotated with the classification §4.5.4's search
// order depends on. The core never hardcodes builtin names or behavior —
// only this classification table, supplied by the host shell.
type Builtin struct {
	Name string
	Kind BuiltinKind
	Cmd  Command
}

// BuiltinKind is the three-way built-in classification §4.5.4's search
// order consults.
type BuiltinKind uint8

const (
	// BuiltinOrdinary is an ordinary built-in: resolved after functions.
	BuiltinOrdinary BuiltinKind = iota
	// BuiltinSpecial precedes functions and whose errors are fatal in
	// non-interactive scripts per POSIX.
	BuiltinSpecial
	// BuiltinSubstitutive only activates when PATH also has a same-named
	// executable.
	BuiltinSubstitutive
)
