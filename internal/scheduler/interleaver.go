package scheduler

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Interleaver serializes per-task output to a shared writer in finish
// order while each task writes independently and concurrently to its
// own buffer (spec.md §4.7's output-ordering guarantee: "the scheduler
// itself does not interleave stdout"). Each task gets its own buffer
// for the duration of its run; when the task finishes, its captured
// output is flushed to the shared writer under a lock, so concurrent
// tasks never produce interleaved lines in the console.
type Interleaver struct {
	mu  sync.Mutex
	out io.Writer
}

// NewInterleaver creates an Interleaver writing finished task output to out.
func NewInterleaver(out io.Writer) *Interleaver {
	return &Interleaver{out: out}
}

// taskWriter returns a private buffer for name and a flush function that
// writes the buffer's accumulated content to the shared writer, header
// first. Call flush exactly once, after the task reaches a terminal
// status.
func (in *Interleaver) taskWriter(name string) (io.Writer, func()) {
	var buf bytes.Buffer
	flush := func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		fmt.Fprintf(in.out, "── %s ──\n", name)
		in.out.Write(buf.Bytes())
	}
	return &buf, flush
}
