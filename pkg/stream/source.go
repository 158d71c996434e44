package stream

import (
	"context"
	"io"
	"sync"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"
)

var ErrQueueClosed = errors.New("stream: push to closed queue")

// ReaderSource polls an io.Reader for chunks of at most chunkSize bytes.
// Each chunk reuses the same backing array.
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource reads in chunks of chunkSize bytes. Sizes below 1 are
// raised to 1.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	return &ReaderSource{
		r:   r,
		buf: make([]byte, max(chunkSize, 1)),
	}
}

func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := s.r.Read(s.buf)
	return s.buf[:n], err
}

// Queue is an in-memory source fed by Push. Next waits for a chunk and
// reports io.EOF once the queue is closed and empty.
type Queue struct {
	mu      sync.Mutex
	chunks  *deque.Deque[[]byte]
	closed  bool
	err     error
	pending chan struct{} // signalled after a push or close
}

func NewQueue() *Queue {
	return &Queue{
		chunks:  deque.New[[]byte](),
		pending: make(chan struct{}, 1),
	}
}

// Push appends a copy of chunk.
func (q *Queue) Push(chunk []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.chunks.PushBack(append([]byte(nil), chunk...))
	q.signal()
	return nil
}

func (q *Queue) Close() {
	q.CloseWithError(nil)
}

// CloseWithError ends the stream. Queued chunks are still delivered; after
// them Next returns err, or io.EOF when err is nil.
func (q *Queue) CloseWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.err = err
	q.signal()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chunks.Len()
}

func (q *Queue) Next(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	for q.chunks.Len() == 0 {
		if q.closed {
			err := q.err
			q.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		q.mu.Unlock()

		select {
		case <-q.pending:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		q.mu.Lock()
	}
	chunk := q.chunks.PopFront()
	q.mu.Unlock()
	return chunk, nil
}

// The queue should be locked on entry.
func (q *Queue) signal() {
	select {
	case q.pending <- struct{}{}:
	default:
	}
}
