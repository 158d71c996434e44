package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ringpipe/pkg/config"
	"ringpipe/pkg/session"
	"ringpipe/pkg/util"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	flagLogLevel string
	flagMode     string
	flagCapacity string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ringpipe",
	Short: "Stream bytes through a bounded ring buffer",
	Long: `ringpipe decouples a producer reading from a source and a consumer
writing to a sink with a fixed-capacity circular buffer.

Settings come from an optional YAML file (--config) and can be overridden
with flags.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagMode, "mode", "", "blocking or polling")
	rootCmd.PersistentFlags().StringVar(&flagCapacity, "capacity", "", "ring buffer capacity, e.g. 64KiB")

	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(stressCmd)
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return nil, err
		}
	}

	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagMode != "" {
		mode, err := session.ParseMode(flagMode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = config.Mode(mode)
	}
	if flagCapacity != "" {
		n, err := util.ParseSize(flagCapacity)
		if err != nil {
			return nil, err
		}
		cfg.Capacity = config.Size(n)
		cfg.ChunkSize = config.Size(min(int(cfg.ChunkSize), n))
		cfg.ReadSize = config.Size(min(int(cfg.ReadSize), n))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (log.Logger, error) {
	return util.NewLogger(os.Stderr, cfg.LogLevel)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
