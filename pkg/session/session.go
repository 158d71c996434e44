package session

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ringpipe/pkg/ringbuf"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionUsed = errors.New("session: already run")
	ErrInvalidMode = errors.New("session: invalid mode")
)

// Source is polled for the next chunk of bytes. It returns io.EOF once
// exhausted. The returned chunk only has to stay valid until the next call.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Sink accepts drained bytes. Any io.Writer is a Sink.
type Sink interface {
	Write(p []byte) (int, error)
}

type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

// SourceError reports that the source failed. Bytes produced before the
// failure were still delivered to the sink.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "source: " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// SinkError reports that the sink failed. The producer is cancelled.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "sink: " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

type Mode int

const (
	// ModeBlocking suspends each side on the buffer until the other makes progress.
	ModeBlocking Mode = iota
	// ModePolling retries TryWrite/TryRead with a backoff between attempts.
	ModePolling
)

var modeString = []string{
	"blocking",
	"polling",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeString) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeString[m]
}

func ParseMode(s string) (Mode, error) {
	for i, name := range modeString {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidMode, "%q", s)
}

type Config struct {
	Capacity   int  // ring buffer size in bytes
	ReadSize   int  // largest chunk the consumer moves to the sink at once
	Mode       Mode // how each side waits on the other
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:   64 << 10,
		ReadSize:   32 << 10,
		Mode:       ModeBlocking,
		MinBackoff: 10 * time.Microsecond,
		MaxBackoff: 5 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.ReadSize <= 0 {
		return errors.Errorf("read size must be positive, got %d", c.ReadSize)
	}
	if c.Mode != ModeBlocking && c.Mode != ModePolling {
		return errors.Wrapf(ErrInvalidMode, "%d", int(c.Mode))
	}
	if c.Mode == ModePolling && (c.MinBackoff <= 0 || c.MaxBackoff < c.MinBackoff) {
		return errors.Errorf("backoff range [%v, %v] is invalid", c.MinBackoff, c.MaxBackoff)
	}
	return nil
}

type Stats struct {
	ID         string
	BytesIn    int64 // committed to the buffer by the producer
	BytesOut   int64 // accepted by the sink
	Chunks     int64
	Rejections int64 // writes refused for lack of space (polling mode)
	Backoffs   int64 // consumer waits on an empty buffer (polling mode)
	Elapsed    time.Duration
}

// Session moves one stream from a Source to a Sink through a shared ring
// buffer, with one producer and one consumer goroutine.
type Session struct {
	id      string
	cfg     Config
	buf     *ringbuf.Guarded
	logger  log.Logger
	metrics *Metrics

	done atomic.Bool // set once by the producer
	used atomic.Bool

	// readSize picks the length of each consumer read, capped at
	// cfg.ReadSize. Nil means every read asks for cfg.ReadSize.
	readSize func() int

	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
	chunks     atomic.Int64
	rejections atomic.Int64
	backoffs   atomic.Int64
}

type Option func(*Session)

func WithLogger(logger log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// New validates cfg and allocates the session's buffer.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buf, err := ringbuf.NewGuarded(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		buf:    buf,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.logger = log.With(s.logger, "session", s.id, "mode", cfg.Mode)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Run pumps src into dst until the source is exhausted and the buffer is
// drained, a side fails, or ctx is cancelled. The buffer is released when
// Run returns; a session runs only once.
func (s *Session) Run(ctx context.Context, src Source, dst Sink) (Stats, error) {
	if !s.used.CompareAndSwap(false, true) {
		return Stats{ID: s.id}, ErrSessionUsed
	}
	defer s.buf.Destroy()

	start := time.Now()
	level.Info(s.logger).Log("msg", "session started", "capacity", s.cfg.Capacity, "read_size", s.cfg.ReadSize)

	var srcErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.produce(gctx, src)
		s.finish()
		var se *SourceError
		if errors.As(err, &se) {
			// let the consumer drain what was already committed
			srcErr = err
			return nil
		}
		return err
	})
	g.Go(func() error {
		return s.consume(gctx, dst)
	})

	err := g.Wait()
	if err == nil {
		err = srcErr
	}

	stats := s.stats(time.Since(start))
	s.metrics.sessions.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		level.Error(s.logger).Log("msg", "session failed", "err", err, "bytes_in", stats.BytesIn, "bytes_out", stats.BytesOut)
		return stats, err
	}
	level.Info(s.logger).Log("msg", "session finished", "bytes", stats.BytesOut, "chunks", stats.Chunks,
		"rejections", stats.Rejections, "backoffs", stats.Backoffs, "elapsed", stats.Elapsed)
	return stats, nil
}

// finish raises the completion flag. In blocking mode the buffer's
// end-of-stream marker carries the same signal.
func (s *Session) finish() {
	s.done.Store(true)
	s.buf.CloseWrite()
}

func (s *Session) stats(elapsed time.Duration) Stats {
	return Stats{
		ID:         s.id,
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
		Chunks:     s.chunks.Load(),
		Rejections: s.rejections.Load(),
		Backoffs:   s.backoffs.Load(),
		Elapsed:    elapsed,
	}
}

func resultLabel(err error) string {
	var (
		se *SourceError
		ke *SinkError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return "source_error"
	case errors.As(err, &ke):
		return "sink_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
