package ringbuf

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAllocation = errors.New("ringbuf: cannot allocate buffer")
	ErrRejected   = errors.New("ringbuf: not enough free space")
	ErrTooLarge   = errors.New("ringbuf: write larger than capacity")
	ErrDestroyed  = errors.New("ringbuf: buffer destroyed")
)

// ------|++++++++++++++++|--------------------|
//      cursor     cursor+size            capacity
// The window may wrap: cursor+size > capacity continues at offset 0.

// RingBuffer is a fixed-capacity circular byte buffer. It is not safe for
// concurrent use; share it through Guarded.
type RingBuffer struct {
	buff     []byte
	capacity int
	cursor   int // first unconsumed byte
	size     int // valid bytes starting at cursor
}

// New allocates a zero-filled buffer of the given capacity.
func New(capacity int) (*RingBuffer, error) {
	buff, err := alloc(capacity)
	if err != nil {
		return nil, err
	}
	return &RingBuffer{
		buff:     buff,
		capacity: capacity,
	}, nil
}

func alloc(capacity int) (buff []byte, err error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrAllocation, "capacity %d", capacity)
	}
	defer func() {
		if r := recover(); r != nil {
			buff = nil
			err = errors.Wrapf(ErrAllocation, "capacity %d: %v", capacity, r)
		}
	}()
	return make([]byte, capacity), nil
}

// Write stores all of p or nothing. A payload larger than the free space is
// rejected with ErrRejected, one larger than the whole buffer with
// ErrTooLarge; in both cases the buffer is left untouched.
func (rb *RingBuffer) Write(p []byte) error {
	if rb.buff == nil {
		return ErrDestroyed
	}
	if len(p) == 0 {
		return nil
	}
	if len(p) > rb.capacity {
		return ErrTooLarge
	}
	if len(p) > rb.capacity-rb.size {
		return ErrRejected
	}

	start := (rb.cursor + rb.size) % rb.capacity
	tailSpace := rb.capacity - start
	if len(p) <= tailSpace {
		copy(rb.buff[start:], p)
	} else { // need to wrap around
		copy(rb.buff[start:], p[:tailSpace])
		copy(rb.buff[0:], p[tailSpace:])
	}
	rb.size += len(p)
	return nil
}

// Read moves up to len(p) bytes into p and returns how many were moved.
// It never fails: an empty buffer simply yields 0.
func (rb *RingBuffer) Read(p []byte) int {
	n := rb.peek(p)
	if n == 0 {
		return 0
	}
	rb.cursor = (rb.cursor + n) % rb.capacity
	rb.size -= n
	return n
}

// peek copies up to len(p) buffered bytes without consuming them.
func (rb *RingBuffer) peek(p []byte) int {
	n := min(len(p), rb.size)
	if n == 0 || rb.buff == nil {
		return 0
	}
	end := rb.cursor + n
	if end <= rb.capacity {
		copy(p, rb.buff[rb.cursor:end])
	} else {
		headBytes := rb.capacity - rb.cursor
		copy(p, rb.buff[rb.cursor:])
		copy(p[headBytes:n], rb.buff[:end-rb.capacity])
	}
	return n
}

// Bytes returns a copy of the buffered data in FIFO order.
func (rb *RingBuffer) Bytes() []byte {
	if rb.size == 0 {
		return nil
	}
	buf := make([]byte, rb.size)
	rb.peek(buf)
	return buf
}

// Gets the number of buffered bytes
func (rb *RingBuffer) DataSize() int {
	return rb.size
}

// Gets the available write space
func (rb *RingBuffer) FreeSize() int {
	return rb.Capacity() - rb.size
}

func (rb *RingBuffer) Capacity() int {
	if rb.buff == nil {
		return 0
	}
	return rb.capacity
}

func (rb *RingBuffer) Cursor() int {
	return rb.cursor
}

func (rb *RingBuffer) IsEmpty() bool {
	return rb.size == 0
}

func (rb *RingBuffer) IsFull() bool {
	return rb.buff != nil && rb.size == rb.capacity
}

// Reset drops all buffered bytes.
func (rb *RingBuffer) Reset() {
	rb.cursor = 0
	rb.size = 0
}

// Destroy releases the storage. The buffer must not be used afterwards.
func (rb *RingBuffer) Destroy() {
	rb.buff = nil
	rb.cursor = 0
	rb.size = 0
}

func (rb *RingBuffer) String() string {
	return fmt.Sprintf("ringbuf{cap=%d cursor=%d size=%d}", rb.Capacity(), rb.cursor, rb.size)
}
