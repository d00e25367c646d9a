// Package pool provides a typed sync.Pool wrapper so callers reusing a
// scratch buffer never need an interface{} type assertion at the call site.
package pool

import (
	"bytes"
	"sync"
)

// BufferPool recycles *bytes.Buffer values across the forward path's origin
// round trips. Reset before Put keeps the next Get() from seeing stale
// content; the pool only ever grows to the number of buffers concurrently
// in flight, since origin.Client borrows one per request and returns it
// before the response frame is sent upstream.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool builds an empty BufferPool; Get allocates lazily on first
// use, as sync.Pool does.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Get returns a zero-length buffer, either recycled or freshly allocated.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer) //nolint:forcetypeassert // New always returns *bytes.Buffer
}

// Put resets buf and returns it to the pool.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	p.pool.Put(buf)
}
