package virtsys

import "github.com/shellrt/shellrt/system"

// Virtual signal numbering (§4.2, "Signal semantics"): the POSIX-mandated
// values are kept so test expectations matching real shells still read
// naturally; everything else is assigned a private number starting at 100
// so the virtual backend's numbering is self-consistent across hosts
// regardless of what the host kernel's actual numbers happen to be.
var virtualSignalNumbers = map[system.SignalBase]int{
	system.SIGHUP:  1,
	system.SIGINT:  2,
	system.SIGQUIT: 3,
	system.SIGABRT: 6,
	system.SIGKILL: 9,
	system.SIGALRM: 14,
	system.SIGTERM: 15,

	system.SIGILL:    100,
	system.SIGTRAP:   101,
	system.SIGBUS:    102,
	system.SIGFPE:    103,
	system.SIGUSR1:   104,
	system.SIGSEGV:   105,
	system.SIGUSR2:   106,
	system.SIGPIPE:   107,
	system.SIGCHLD:   108,
	system.SIGCONT:   109,
	system.SIGSTOP:   110,
	system.SIGTSTP:   111,
	system.SIGTTIN:   112,
	system.SIGTTOU:   113,
	system.SIGURG:    114,
	system.SIGXCPU:   115,
	system.SIGXFSZ:   116,
	system.SIGVTALRM: 117,
	system.SIGPROF:   118,
	system.SIGWINCH:  119,
	system.SIGIO:     120,
	system.SIGSYS:    121,
}

// virtualRTMin/virtualRTMax bound the virtual backend's private real-time
// signal range.
const virtualRTMin, virtualRTMax = 200, 263

var virtualNumberToBase = func() map[int]system.SignalBase {
	out := make(map[int]system.SignalBase, len(virtualSignalNumbers))
	for base, n := range virtualSignalNumbers {
		out[n] = base
	}
	return out
}()

func virtualSignalFromNumber(n int) system.Signal {
	if base, ok := virtualNumberToBase[n]; ok {
		return system.Signal{Name: system.SignalName{Base: base}, Number: n}
	}
	if n >= virtualRTMin && n <= virtualRTMax {
		return system.Signal{Name: system.SignalName{Base: system.SIGRTMIN, RTOffset: n - virtualRTMin}, Number: n}
	}
	return system.Signal{Name: system.SignalName{Base: system.SignalBase("UNKNOWN")}, Number: n}
}

func (s *System) ValidateSignal(raw int) (system.Signal, bool) {
	if raw >= 1 && raw <= virtualRTMax {
		return virtualSignalFromNumber(raw), true
	}
	return system.Signal{}, false
}

func (s *System) ResolveSignal(base system.SignalBase) (system.Signal, bool) {
	n, ok := virtualSignalNumbers[base]
	if !ok {
		return system.Signal{}, false
	}
	return system.Signal{Name: system.SignalName{Base: base}, Number: n}, true
}
