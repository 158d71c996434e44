package ringbuf

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("ringbuf: write to closed buffer")

// Guarded shares a RingBuffer between one producer and one consumer. Every
// method holds the lock for the duration of that single call only.
//
// The Try* methods never wait. Write and Read suspend the caller until the
// other side makes room or data, or until ctx is done.
type Guarded struct {
	mu     sync.Mutex
	rb     *RingBuffer
	closed bool

	canRead  chan struct{} // signalled after bytes are committed or the writer closes
	canWrite chan struct{} // signalled after bytes are consumed
}

func NewGuarded(capacity int) (*Guarded, error) {
	rb, err := New(capacity)
	if err != nil {
		return nil, err
	}
	return &Guarded{
		rb:       rb,
		canRead:  make(chan struct{}, 1),
		canWrite: make(chan struct{}, 1),
	}, nil
}

func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// TryWrite stores all of p or nothing, without waiting.
func (g *Guarded) TryWrite(p []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeLocked(p)
}

func (g *Guarded) writeLocked(p []byte) error {
	if g.rb.buff == nil {
		return ErrDestroyed
	}
	if g.closed {
		return ErrClosed
	}
	if err := g.rb.Write(p); err != nil {
		return err
	}
	if len(p) > 0 {
		notify(g.canRead)
	}
	return nil
}

// TryRead moves up to len(p) bytes into p, without waiting.
func (g *Guarded) TryRead(p []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readLocked(p)
}

func (g *Guarded) readLocked(p []byte) int {
	n := g.rb.Read(p)
	if n > 0 {
		notify(g.canWrite)
	}
	return n
}

// Write stores all of p, waiting until enough space is free. A payload that
// can never fit fails immediately with ErrTooLarge.
func (g *Guarded) Write(ctx context.Context, p []byte) error {
	g.mu.Lock()
	for {
		err := g.writeLocked(p)
		if !errors.Is(err, ErrRejected) {
			g.mu.Unlock()
			return err
		}
		g.mu.Unlock()

		select {
		case <-g.canWrite:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
	}
}

// Read moves up to len(p) bytes into p, waiting until at least one byte is
// available. It returns io.EOF once the writer has closed and the buffer is
// drained.
func (g *Guarded) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	g.mu.Lock()
	for {
		if g.rb.buff == nil {
			g.mu.Unlock()
			return 0, ErrDestroyed
		}
		if n := g.readLocked(p); n > 0 {
			g.mu.Unlock()
			return n, nil
		}
		if g.closed {
			g.mu.Unlock()
			return 0, io.EOF
		}
		g.mu.Unlock()

		select {
		case <-g.canRead:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		g.mu.Lock()
	}
}

// CloseWrite marks the end of the stream. Buffered bytes stay readable.
func (g *Guarded) CloseWrite() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	notify(g.canRead)
}

func (g *Guarded) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Guarded) DataSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rb.DataSize()
}

func (g *Guarded) FreeSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rb.FreeSize()
}

func (g *Guarded) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rb.Capacity()
}

func (g *Guarded) Cursor() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rb.Cursor()
}

func (g *Guarded) Bytes() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rb.Bytes()
}

func (g *Guarded) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rb.Reset()
	notify(g.canWrite)
}

// Destroy releases the storage and wakes any waiter.
func (g *Guarded) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rb.Destroy()
	g.closed = true
	notify(g.canRead)
	notify(g.canWrite)
}
