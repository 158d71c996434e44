package ringbuf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"ringpipe/pkg/bcd"
	"ringpipe/pkg/hexdump"
	"ringpipe/pkg/repl"
)

func RingRepl(g *Guarded) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("w", writeHandler(g), "Writes the text into the buffer, all or nothing. usage: w <text>")
	r.AddCommand("r", readHandler(g), "Reads up to n bytes from the buffer. usage: r <n>")
	r.AddCommand("wbcd", writeBCDHandler(g), "Packs hex digits two per byte and writes them. usage: wbcd <digits>")
	r.AddCommand("rbcd", readBCDHandler(g), "Reads up to n bytes and prints them as packed digits. usage: rbcd <n>")
	r.AddCommand("peek", peekHandler(g), "Dumps the buffered bytes without consuming them. usage: peek")
	r.AddCommand("ls", lsHandler(g), "Shows capacity, buffered and free bytes. usage: ls")
	r.AddCommand("reset", resetHandler(g), "Drops all buffered bytes. usage: reset")

	return r
}

func writeHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		_, text, _ := strings.Cut(input, " ")
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("usage: w <text>")
		}
		data := []byte(text)
		if err := g.TryWrite(data); err != nil {
			return fmt.Errorf("write of %d bytes failed: %w (free %d)", len(data), err, g.FreeSize())
		}
		_, err := io.WriteString(config.Writer, fmt.Sprintf("wrote %d bytes\n", len(data)))
		return err
	}
}

func readHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 2 {
			return fmt.Errorf("usage: r <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("input %v is out of range", n)
		}

		// a read never returns more than the buffer holds
		buf := make([]byte, min(n, g.Capacity()))
		n = g.TryRead(buf)
		_, err = io.WriteString(config.Writer, fmt.Sprintf("read %d bytes: %q\n", n, buf[:n]))
		return err
	}
}

func writeBCDHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 2 {
			return fmt.Errorf("usage: wbcd <digits>")
		}
		data, err := bcd.EncodeString(args[1], 0, 0)
		if err != nil {
			return err
		}
		if err := g.TryWrite(data); err != nil {
			return fmt.Errorf("write of %d bytes failed: %w (free %d)", len(data), err, g.FreeSize())
		}
		_, err = io.WriteString(config.Writer, fmt.Sprintf("wrote %d bytes: % X\n", len(data), data))
		return err
	}
}

func readBCDHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 2 {
			return fmt.Errorf("usage: rbcd <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("input %v is out of range", n)
		}

		buf := make([]byte, min(n, g.Capacity()))
		n = g.TryRead(buf)
		digits, err := bcd.DecodeToString(buf[:n], 0, 0)
		if err != nil {
			return err
		}
		_, err = io.WriteString(config.Writer, fmt.Sprintf("read %d bytes: %s\n", n, digits))
		return err
	}
}

func peekHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		data := g.Bytes()
		if len(data) == 0 {
			_, err := io.WriteString(config.Writer, "buffer is empty\n")
			return err
		}
		_, err := io.WriteString(config.Writer, hexdump.Dump(data, hexdump.Multi|hexdump.LineNum|hexdump.ColNum|hexdump.ASCII))
		return err
	}
}

func lsHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		_, err := io.WriteString(config.Writer, "Cap\tData\tFree\tCursor\tState\n")
		if err != nil {
			return fmt.Errorf("lsHandler cannot write the header")
		}
		_, err = io.WriteString(config.Writer, g.GetStatString())
		if err != nil {
			return fmt.Errorf("lsHandler cannot write buffer stats")
		}
		return nil
	}
}

func resetHandler(g *Guarded) func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		g.Reset()
		_, err := io.WriteString(config.Writer, "buffer reset\n")
		return err
	}
}
