package commands

import (
	"fmt"
	"os"

	"ringpipe/pkg/ringbuf"
	"ringpipe/pkg/util"

	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Drive a ring buffer by hand",
	Long: `Start an interactive console on a fresh buffer. The capacity comes from
--capacity (default 16 bytes here, so wrap-around is easy to see).

Type "help" for the command list.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	capacity := 16
	if flagCapacity != "" {
		n, err := util.ParseSize(flagCapacity)
		if err != nil {
			return err
		}
		capacity = n
	}

	g, err := ringbuf.NewGuarded(capacity)
	if err != nil {
		return err
	}
	defer g.Destroy()

	r := ringbuf.RingRepl(g)
	fmt.Fprintf(cmd.OutOrStdout(), "ring buffer with capacity %s\n", util.FormatSize(capacity))
	return r.Run(os.Stdin, cmd.OutOrStdout())
}
