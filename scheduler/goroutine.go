package scheduler

import "runtime"

// goroutineTag returns the current goroutine's runtime id, parsed from the
// "goroutine N [...]" header of a stack trace. Adapted from the teacher's
// getGoroutineID (eventloop/loop.go): used only to decide whether
// SubmitInternal was called from the loop's own goroutine, never as a
// stable identity across goroutine lifetimes.
func goroutineTag() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
