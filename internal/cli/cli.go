// Package cli parses vegad command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandConsole Command = "console"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:   {},
	CommandConsole: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Addr       string
	Simulator  bool
	ShowHelp   bool
}

func newFlagSet(parsed *Parsed, showVersion *bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("vegad", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SortFlags = false
	flagSet.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	flagSet.StringVar(&parsed.Addr, "addr", "", "server address for console and doctor")
	flagSet.BoolVar(&parsed.Simulator, "simulator", false, "use the simulated mount")
	flagSet.BoolVarP(&parsed.ShowHelp, "help", "h", false, "show help")
	flagSet.BoolVar(showVersion, "version", false, "show version")
	return flagSet
}

func Parse(args []string) (Parsed, error) {
	var parsed Parsed
	var showVersion bool

	flagSet := newFlagSet(&parsed, &showVersion)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Parsed{Command: CommandHelp, ShowHelp: true}, nil
		}
		return Parsed{}, err
	}
	if flagSet.Changed("config") && strings.TrimSpace(parsed.ConfigPath) == "" {
		return Parsed{}, errors.New("--config requires a path")
	}

	positional := flagSet.Args()
	if len(positional) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", positional[0])
	}

	switch {
	case parsed.ShowHelp:
		parsed.Command = CommandHelp
	case showVersion:
		parsed.Command = CommandVersion
	case len(positional) == 0:
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	default:
		cmd := Command(positional[0])
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", positional[0])
		}
		parsed.Command = cmd
		parsed.ShowHelp = cmd == CommandHelp
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	var parsed Parsed
	var showVersion bool
	usages := newFlagSet(&parsed, &showVersion).FlagUsages()

	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  serve     Run the antenna command server
  console   Open an interactive operator console against a running server
  doctor    Run configuration, mount, and server checks
  version   Print version information
  help      Show this help

Flags:
%[2]s`, binaryName, usages)
}
