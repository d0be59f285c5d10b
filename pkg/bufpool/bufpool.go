// Package bufpool provides a fixed-class buffer pool for flush I/O.
//
// The log's flush path marshals one extent's worth of records at a time, so a
// single size class covers it: buffers up to the class size come from a
// sync.Pool, anything larger is allocated directly and never pooled.
package bufpool

import "sync"

// Pool hands out byte slices backed by a single pooled size class.
// Safe for concurrent use.
type Pool struct {
	class int
	pool  sync.Pool
}

// New creates a pool whose reusable buffers hold class bytes each.
func New(class int) *Pool {
	p := &Pool{class: class}
	p.pool.New = func() any {
		buf := make([]byte, class)
		return &buf
	}
	return p
}

// Get returns a slice of exactly n bytes. Slices no larger than the class
// are backed by pooled storage and must be handed back with Put.
func (p *Pool) Get(n int) []byte {
	if n > p.class {
		return make([]byte, n)
	}
	buf := p.pool.Get().(*[]byte)
	return (*buf)[:n]
}

// Put returns a buffer obtained from Get. Oversized buffers are dropped for
// the garbage collector; the buffer must not be used after Put.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.class {
		return
	}
	full := buf[:cap(buf)]
	p.pool.Put(&full)
}
