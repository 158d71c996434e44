package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"ringpipe/pkg/session"
	"ringpipe/pkg/stream"
	"ringpipe/pkg/util"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	flagTotal string
	flagSeed  int64
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Push random data in random chunk sizes through a session",
	Long: `Generate --total random bytes, feed them to a session in randomly sized
chunks and check that the consumer saw exactly the same byte sequence.`,
	Args: cobra.NoArgs,
	RunE: runStress,
}

func init() {
	stressCmd.Flags().StringVar(&flagTotal, "total", "1MiB", "bytes to push through the buffer")
	stressCmd.Flags().Int64Var(&flagSeed, "seed", 0, "random seed (0 picks one from the clock)")
}

func runStress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	total, err := util.ParseSize(flagTotal)
	if err != nil {
		return err
	}
	seed := flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rnd := rand.New(rand.NewSource(seed))
	data := make([]byte, total)
	rnd.Read(data)

	s, err := session.New(cfg.Session(), session.WithLogger(logger))
	if err != nil {
		return err
	}
	digest := xxhash.New()
	stats, err := s.Run(ctx, randomChunks(data, int(cfg.ChunkSize), rnd), digest)
	if err != nil {
		return err
	}

	want, err := stream.Checksum(bytes.NewReader(data))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s seed=%d mode=%v\n", stats.ID, seed, cfg.Session().Mode)
	fmt.Fprintf(out, "bytes=%d chunks=%d rejections=%d backoffs=%d elapsed=%v\n",
		stats.BytesOut, stats.Chunks, stats.Rejections, stats.Backoffs, stats.Elapsed)
	if got := digest.Sum64(); got != want || stats.BytesOut != int64(total) {
		return errors.Errorf("stream mismatch: digest %016x != %016x, %d of %d bytes", got, want, stats.BytesOut, total)
	}
	fmt.Fprintf(out, "ok xxhash=%016x\n", want)
	return nil
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
