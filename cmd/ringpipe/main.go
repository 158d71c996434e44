// ringpipe moves byte streams through a fixed-capacity ring buffer shared by
// a producer and a consumer goroutine.
//
// Usage:
//
//	ringpipe copy <src> <dst>       # copy a file or directory tree
//	ringpipe copy --verify a b      # compare xxhash digests afterwards
//	ringpipe repl --capacity 16     # poke at a buffer interactively
//	ringpipe stress --total 1MiB    # random producer/consumer run
package main

import (
	"os"

	"ringpipe/cmd/ringpipe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
