package stream

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"ringpipe/pkg/session"

	"github.com/cespare/xxhash/v2"
	"github.com/gammazero/deque"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

var (
	ErrEmptyPath = errors.New("stream: empty path")
	ErrSameFile  = errors.New("stream: source and destination are the same file")
)

const (
	fileMode = 0o600
	dirMode  = 0o770
)

type Options struct {
	Session   session.Config
	ChunkSize int // producer read size; defaults to min(ReadSize, Capacity)
	Logger    log.Logger
	Metrics   *session.Metrics
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return min(o.ChunkSize, o.Session.Capacity)
	}
	return min(o.Session.ReadSize, o.Session.Capacity)
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

func (o Options) sessionOptions() []session.Option {
	opts := []session.Option{session.WithLogger(o.logger())}
	if o.Metrics != nil {
		opts = append(opts, session.WithMetrics(o.Metrics))
	}
	return opts
}

// CopyFile pipes from into to through a fresh session and returns the
// number of bytes written. The destination is created or truncated.
func CopyFile(ctx context.Context, from, to string, opts Options) (int64, error) {
	if from == "" || to == "" {
		return 0, ErrEmptyPath
	}
	if opts.chunkSize() <= 0 {
		return 0, errors.Errorf("invalid chunk size %d", opts.chunkSize())
	}

	s, err := session.New(opts.Session, opts.sessionOptions()...)
	if err != nil {
		return 0, err
	}

	in, err := os.Open(from)
	if err != nil {
		return 0, errors.Wrap(err, "open source")
	}
	defer in.Close()

	// truncating the destination must never empty the source
	inInfo, err := in.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat source")
	}
	if outInfo, err := os.Stat(to); err == nil && os.SameFile(inInfo, outInfo) {
		return 0, errors.Wrapf(ErrSameFile, "%s -> %s", from, to)
	}

	out, err := os.OpenFile(to, os.O_RDWR|os.O_TRUNC|os.O_CREATE, fileMode)
	if err != nil {
		return 0, errors.Wrap(err, "open destination")
	}

	stats, err := s.Run(ctx, NewReaderSource(in, opts.chunkSize()), out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close destination")
	}
	if err != nil {
		return stats.BytesOut, errors.Wrapf(err, "copy %s", from)
	}
	level.Debug(opts.logger()).Log("msg", "copied file", "from", from, "to", to, "bytes", stats.BytesOut)
	return stats.BytesOut, nil
}

type dirPair struct {
	from, to string
}

// CopyDir copies the regular files under from into to, creating missing
// directories. Entries that are neither directories nor regular files are
// skipped. It returns the total number of bytes copied.
func CopyDir(ctx context.Context, from, to string, opts Options) (int64, error) {
	if from == "" || to == "" {
		return 0, ErrEmptyPath
	}

	var total int64
	pending := deque.New[dirPair]()
	pending.PushBack(dirPair{from, to})
	for pending.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		d := pending.PopFront()

		entries, err := os.ReadDir(d.from)
		if err != nil {
			return total, errors.Wrap(err, "read directory")
		}
		if err := ensureDir(d.to); err != nil {
			return total, err
		}

		for _, e := range entries {
			src := filepath.Join(d.from, e.Name())
			dst := filepath.Join(d.to, e.Name())
			switch {
			case e.IsDir():
				pending.PushBack(dirPair{src, dst})
			case e.Type().IsRegular():
				n, err := CopyFile(ctx, src, dst, opts)
				total += n
				if err != nil {
					return total, err
				}
			default:
				level.Debug(opts.logger()).Log("msg", "skipping entry", "path", src, "type", e.Type())
			}
		}
	}
	return total, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return errors.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat destination")
	}
	return errors.Wrap(os.Mkdir(path, dirMode), "create directory")
}

// Checksum returns the xxhash64 digest of everything r yields.
func Checksum(r io.Reader) (uint64, error) {
	d := xxhash.New()
	if _, err := io.Copy(d, r); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

func ChecksumFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open for checksum")
	}
	defer f.Close()
	return Checksum(f)
}
