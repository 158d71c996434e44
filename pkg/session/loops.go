package session

import (
	"context"
	"io"

	"ringpipe/pkg/ringbuf"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
)

/************************************ Producer ***********************************/

// A source returning this many empty chunks in a row without an error is
// treated as broken.
const maxConsecutiveEmptyChunks = 100

func (s *Session) produce(ctx context.Context, src Source) error {
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := src.Next(ctx)
		if len(chunk) > 0 {
			empty = 0
			if werr := s.put(ctx, chunk); werr != nil {
				return werr
			}
		}

		switch {
		case err == nil:
			if len(chunk) > 0 {
				break
			}
			empty++
			if empty >= maxConsecutiveEmptyChunks {
				return &SourceError{Err: io.ErrNoProgress}
			}
		case errors.Is(err, io.EOF):
			level.Debug(s.logger).Log("msg", "source exhausted", "bytes", s.bytesIn.Load())
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return &SourceError{Err: err}
		}
	}
}

// put commits the whole chunk, waiting for room as the mode dictates.
func (s *Session) put(ctx context.Context, chunk []byte) error {
	if len(chunk) > s.cfg.Capacity {
		return errors.Wrapf(ringbuf.ErrTooLarge, "chunk of %d bytes, capacity %d", len(chunk), s.cfg.Capacity)
	}

	var err error
	if s.cfg.Mode == ModeBlocking {
		err = s.buf.Write(ctx, chunk)
	} else {
		err = s.pollWrite(ctx, chunk)
	}
	if err != nil {
		return err
	}

	s.bytesIn.Add(int64(len(chunk)))
	s.chunks.Add(1)
	s.metrics.bytesIn.Add(float64(len(chunk)))
	return nil
}

func (s *Session) pollWrite(ctx context.Context, chunk []byte) error {
	b := backoff.New(ctx, s.backoffConfig())
	for b.Ongoing() {
		err := s.buf.TryWrite(chunk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ringbuf.ErrRejected) {
			return err
		}
		s.rejections.Add(1)
		s.metrics.rejections.Inc()
		b.Wait()
	}
	return b.Err()
}

/************************************ Consumer ***********************************/

func (s *Session) consume(ctx context.Context, dst Sink) error {
	buf := make([]byte, s.cfg.ReadSize)
	if s.cfg.Mode == ModeBlocking {
		return s.consumeBlocking(ctx, dst, buf)
	}
	return s.consumePolling(ctx, dst, buf)
}

// readBuf returns the slice of buf the next read fills.
func (s *Session) readBuf(buf []byte) []byte {
	if s.readSize == nil {
		return buf
	}
	return buf[:min(max(s.readSize(), 1), len(buf))]
}

func (s *Session) consumeBlocking(ctx context.Context, dst Sink, buf []byte) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.buf.Read(ctx, s.readBuf(buf))
		if n > 0 {
			if werr := s.drain(dst, buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) consumePolling(ctx context.Context, dst Sink, buf []byte) error {
	b := backoff.New(ctx, s.backoffConfig())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Load the flag before reading: anything written before it was
		// raised is then guaranteed to show up in this read.
		done := s.done.Load()
		if n := s.buf.TryRead(s.readBuf(buf)); n > 0 {
			if err := s.drain(dst, buf[:n]); err != nil {
				return err
			}
			b.Reset()
			continue
		}
		if done {
			return nil
		}

		if !b.Ongoing() {
			return b.Err()
		}
		s.backoffs.Add(1)
		s.metrics.backoffs.Inc()
		b.Wait()
	}
}

// drain hands p to the sink, retrying short writes.
func (s *Session) drain(dst Sink, p []byte) error {
	for len(p) > 0 {
		n, err := dst.Write(p)
		if n > 0 {
			s.bytesOut.Add(int64(n))
			s.metrics.bytesOut.Add(float64(n))
			p = p[n:]
		}
		if err != nil {
			return &SinkError{Err: err}
		}
		if n == 0 {
			return &SinkError{Err: io.ErrShortWrite}
		}
	}
	return nil
}

func (s *Session) backoffConfig() backoff.Config {
	return backoff.Config{
		MinBackoff: s.cfg.MinBackoff,
		MaxBackoff: s.cfg.MaxBackoff,
	}
}
