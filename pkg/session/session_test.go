package session_test

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"ringpipe/pkg/ringbuf"
	"ringpipe/pkg/session"
	"ringpipe/pkg/stream"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	totalBytes = 1 << 20
	capacity   = 64 << 10
)

func testConfig(mode session.Mode) session.Config {
	cfg := session.DefaultConfig()
	cfg.Capacity = capacity
	cfg.ReadSize = capacity
	cfg.Mode = mode
	cfg.MinBackoff = time.Microsecond
	cfg.MaxBackoff = 100 * time.Microsecond
	return cfg
}

// randomChunks yields data in chunks of 1..maxChunk bytes.
func randomChunks(data []byte, maxChunk int, rnd *rand.Rand) session.Source {
	return session.SourceFunc(func(ctx context.Context) ([]byte, error) {
		if len(data) == 0 {
			return nil, io.EOF
		}
		n := min(1+rnd.Intn(maxChunk), len(data))
		chunk := data[:n]
		data = data[n:]
		return chunk, nil
	})
}

// shortWriter accepts a random prefix of every write.
type shortWriter struct {
	buf bytes.Buffer
	rnd *rand.Rand
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := 1 + w.rnd.Intn(len(p))
	return w.buf.Write(p[:n])
}

type failingSink struct {
	after int
	n     int
}

func (w *failingSink) Write(p []byte) (int, error) {
	if w.n+len(p) > w.after {
		k := w.after - w.n
		w.n = w.after
		return k, errors.New("disk full")
	}
	w.n += len(p)
	return len(p), nil
}

type zeroSink struct{}

func (zeroSink) Write(p []byte) (int, error) { return 0, nil }

func randomData(t *testing.T, seed int64) []byte {
	t.Helper()
	data := make([]byte, totalBytes)
	_, err := rand.New(rand.NewSource(seed)).Read(data)
	require.NoError(t, err)
	return data
}

func TestSession_RandomChunks(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		t.Run(mode.String(), func(t *testing.T) {
			data := randomData(t, 42)
			rnd := rand.New(rand.NewSource(7))
			sink := &shortWriter{rnd: rand.New(rand.NewSource(8))}

			reg := prometheus.NewPedanticRegistry()
			s, err := session.New(testConfig(mode), session.WithMetrics(session.NewMetrics(reg)))
			require.NoError(t, err)

			stats, err := s.Run(context.Background(), randomChunks(data, capacity, rnd), sink)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, sink.buf.Bytes()), "sink differs from source")
			assert.Equal(t, int64(totalBytes), stats.BytesIn)
			assert.Equal(t, int64(totalBytes), stats.BytesOut)
			assert.Equal(t, s.ID(), stats.ID)
			assert.Positive(t, stats.Chunks)

			assert.Equal(t, float64(totalBytes), gatherValue(t, reg, "ringpipe_consumed_bytes_total"))
			assert.Equal(t, float64(1), gatherValue(t, reg, "ringpipe_sessions_total"))
		})
	}
}

func TestSession_SmallReadSize(t *testing.T) {
	cfg := testConfig(session.ModePolling)
	cfg.Capacity = 16
	cfg.ReadSize = 3

	var sink bytes.Buffer
	s, err := session.New(cfg)
	require.NoError(t, err)
	src := stream.NewReaderSource(bytes.NewReader([]byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ")), 7)
	stats, err := s.Run(context.Background(), src, &sink)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZ", sink.String())
	assert.Equal(t, int64(4), stats.Chunks)
}

func TestSession_EmptySource(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		s, err := session.New(testConfig(mode))
		require.NoError(t, err)
		var sink bytes.Buffer
		stats, err := s.Run(context.Background(), stream.NewReaderSource(bytes.NewReader(nil), 8), &sink)
		require.NoError(t, err)
		assert.Zero(t, stats.BytesOut)
		assert.Zero(t, sink.Len())
	}
}

func TestSession_SourceErrorDrainsCommittedBytes(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		t.Run(mode.String(), func(t *testing.T) {
			boom := errors.New("boom")
			q := stream.NewQueue()
			require.NoError(t, q.Push([]byte("first ")))
			require.NoError(t, q.Push([]byte("second")))
			q.CloseWithError(boom)

			s, err := session.New(testConfig(mode))
			require.NoError(t, err)
			var sink bytes.Buffer
			stats, err := s.Run(context.Background(), q, &sink)

			var se *session.SourceError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, "first second", sink.String())
			assert.Equal(t, int64(12), stats.BytesOut)
		})
	}
}

func TestSession_SinkError(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		t.Run(mode.String(), func(t *testing.T) {
			data := randomData(t, 1)
			s, err := session.New(testConfig(mode))
			require.NoError(t, err)

			sink := &failingSink{after: 100 << 10}
			stats, err := s.Run(context.Background(), randomChunks(data, 4096, rand.New(rand.NewSource(2))), sink)
			var ke *session.SinkError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, int64(100<<10), stats.BytesOut)
			assert.Less(t, stats.BytesIn, int64(totalBytes))
		})
	}
}

func TestSession_ZeroChunkSizeReader(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		s, err := session.New(testConfig(mode))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var sink bytes.Buffer
		_, err = s.Run(ctx, stream.NewReaderSource(bytes.NewReader([]byte("data")), 0), &sink)
		require.NoError(t, err, mode)
		assert.Equal(t, "data", sink.String(), mode)
	}
}

func TestSession_EmptyChunksWithoutProgress(t *testing.T) {
	s, err := session.New(testConfig(session.ModeBlocking))
	require.NoError(t, err)

	calls := 0
	stuck := session.SourceFunc(func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("head"), nil
		}
		return nil, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var sink bytes.Buffer
	_, err = s.Run(ctx, stuck, &sink)

	var se *session.SourceError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, io.ErrNoProgress)
	assert.Equal(t, "head", sink.String())
}

func TestSession_OccasionalEmptyChunks(t *testing.T) {
	s, err := session.New(testConfig(session.ModePolling))
	require.NoError(t, err)

	// a few empty chunks between real ones are not a stall
	chunks := [][]byte{nil, []byte("a"), nil, nil, []byte("b"), {}, []byte("c")}
	src := session.SourceFunc(func(ctx context.Context) ([]byte, error) {
		if len(chunks) == 0 {
			return nil, io.EOF
		}
		c := chunks[0]
		chunks = chunks[1:]
		return c, nil
	})
	var sink bytes.Buffer
	_, err = s.Run(context.Background(), src, &sink)
	require.NoError(t, err)
	assert.Equal(t, "abc", sink.String())
}

func TestSession_ZeroWriteSink(t *testing.T) {
	s, err := session.New(testConfig(session.ModeBlocking))
	require.NoError(t, err)
	_, err = s.Run(context.Background(), randomChunks([]byte("abc"), 3, rand.New(rand.NewSource(1))), zeroSink{})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestSession_ChunkTooLarge(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := testConfig(mode)
			cfg.Capacity = 8
			s, err := session.New(cfg)
			require.NoError(t, err)

			q := stream.NewQueue()
			require.NoError(t, q.Push([]byte("ok")))
			require.NoError(t, q.Push([]byte("far too large")))
			q.Close()

			var sink bytes.Buffer
			done := make(chan error, 1)
			go func() {
				_, err := s.Run(context.Background(), q, &sink)
				done <- err
			}()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, ringbuf.ErrTooLarge)
			case <-time.After(5 * time.Second):
				t.Fatal("expect oversized chunk to fail instead of spinning")
			}
		})
	}
}

func TestSession_Cancel(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeBlocking, session.ModePolling} {
		t.Run(mode.String(), func(t *testing.T) {
			s, err := session.New(testConfig(mode))
			require.NoError(t, err)

			// the queue never closes, so only cancellation ends the run
			q := stream.NewQueue()
			require.NoError(t, q.Push([]byte("pending")))

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			var sink bytes.Buffer
			_, err = s.Run(ctx, q, &sink)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, "pending", sink.String())
		})
	}
}

func TestSession_RunOnce(t *testing.T) {
	s, err := session.New(testConfig(session.ModeBlocking))
	require.NoError(t, err)
	src := stream.NewReaderSource(bytes.NewReader([]byte("x")), 1)
	_, err = s.Run(context.Background(), src, io.Discard)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), src, io.Discard)
	assert.ErrorIs(t, err, session.ErrSessionUsed)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, session.DefaultConfig().Validate())

	for name, mutate := range map[string]func(*session.Config){
		"zero capacity":  func(c *session.Config) { c.Capacity = 0 },
		"zero read size": func(c *session.Config) { c.ReadSize = 0 },
		"bad mode":       func(c *session.Config) { c.Mode = session.Mode(9) },
		"bad backoff": func(c *session.Config) {
			c.Mode = session.ModePolling
			c.MaxBackoff = c.MinBackoff / 2
		},
	} {
		cfg := session.DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
		_, err := session.New(cfg)
		assert.Error(t, err, name)
	}
}

func TestParseMode(t *testing.T) {
	m, err := session.ParseMode("Polling")
	require.NoError(t, err)
	assert.Equal(t, session.ModePolling, m)

	m, err = session.ParseMode("blocking")
	require.NoError(t, err)
	assert.Equal(t, session.ModeBlocking, m)

	_, err = session.ParseMode("spin")
	assert.ErrorIs(t, err, session.ErrInvalidMode)
	assert.Equal(t, "Mode(7)", session.Mode(7).String())
}

// gatherValue sums every sample of the named counter family.
func gatherValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
