package virtsys

import "github.com/shellrt/shellrt/system"

// pipeEnd distinguishes which end of a Fifo's pipe buffer an
// openFileDescription represents; regular files ignore this field.
type pipeEnd uint8

const (
	pipeEndNone pipeEnd = iota
	pipeEndRead
	pipeEndWrite
)

// openFileDescription is the kernel-level "open file" object shared by
// every fd table entry that Dup/Dup2 produced from the same Open/Pipe call
// — matching real Unix semantics where dup'd descriptors share one file
// offset and one set of status flags, while Close/CloseOnExec act per-entry.
type openFileDescription struct {
	node        *inode
	offset      int64
	access      system.AccessMode
	append      bool
	nonblocking bool
	end         pipeEnd
	refs        int
}

func (f *openFileDescription) retain() { f.refs++ }

// release returns true if this was the last reference, in which case the
// caller (System.Close) must also run the close side-effect: decrementing
// the fifo's reader/writer count.
func (f *openFileDescription) release() bool {
	f.refs--
	return f.refs <= 0
}

// fdEntry is one process's view of an openFileDescription: a shared
// description plus a per-entry close-on-exec bit (fcntl(F_SETFD) state is
// never shared across dup'd descriptors).
type fdEntry struct {
	desc        *openFileDescription
	closeOnExec bool
}
