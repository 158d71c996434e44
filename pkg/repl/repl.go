package repl

// note: based off of csci1270-fall23
import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
)

var ErrUnknownCommand = errors.New("unknown command")

type REPL struct {
	Commands map[string]func(string, *REPLConfig) error
	Help     map[string]string
}

type REPLConfig struct {
	Writer io.Writer
}

func NewRepl() *REPL {
	r := &REPL{make(map[string]func(string, *REPLConfig) error), make(map[string]string)}
	return r
}

// Add a command, along with its help string, to the set of commands
func (r *REPL) AddCommand(trigger string, handler func(string, *REPLConfig) error, help string) {
	if trigger == "" || trigger[0] == '.' {
		return
	}
	r.Help[trigger] = help
	r.Commands[trigger] = handler
}

// Return all REPL usage information as a string
func (r *REPL) HelpString() string {
	triggers := make([]string, 0, len(r.Help))
	for k := range r.Help {
		triggers = append(triggers, k)
	}
	sort.Strings(triggers)

	var sb strings.Builder
	sb.WriteString("Commands\n")
	for _, k := range triggers {
		sb.WriteString(fmt.Sprintf("\t%s: %s\n", k, r.Help[k]))
	}
	return sb.String()
}

// Handle dispatches one input line to its command.
func (r *REPL) Handle(input string, config *REPLConfig) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	command := strings.Fields(input)[0]
	if command == "help" {
		_, err := io.WriteString(config.Writer, r.HelpString())
		return err
	}
	handler, ok := r.Commands[command]
	if !ok {
		return errors.Wrap(ErrUnknownCommand, command)
	}
	return handler(input, config)
}

// Run reads commands from in until EOF or an interrupt.
func (r *REPL) Run(in io.ReadCloser, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		Stdin:           in,
		Stdout:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.Wrap(err, "repl: cannot start line reader")
	}
	defer rl.Close()

	replConfig := &REPLConfig{Writer: out}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		err = r.Handle(line, replConfig)
		if errors.Is(err, ErrUnknownCommand) {
			io.WriteString(out, fmt.Sprintf("Invalid command: %s\n", strings.Fields(line)[0]))
			io.WriteString(out, r.HelpString())
		} else if err != nil {
			io.WriteString(out, fmt.Sprintf("Error: %v\n", err))
		}
	}
}
