package tui

import (
	"fmt"
	"strings"
)

// Command is a parsed ":" command line.
type Command struct {
	Name string
	Args string
}

type commandSpec struct {
	name    string
	aliases []string
	usage   string // set when the command needs an argument
}

var commands = []commandSpec{
	{name: "open", aliases: []string{"o"}, usage: ":open <group>"},
	{name: "close"},
	{name: "attach", aliases: []string{"a"}, usage: ":attach <path>"},
	{name: "search", aliases: []string{"s"}},
	{name: "retry"},
	{name: "dismiss"},
	{name: "help", aliases: []string{"h", "?"}},
	{name: "quit", aliases: []string{"q"}},
}

// ParseCommand parses a command line without the leading ':'. Aliases are
// expanded to the full command name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	for _, spec := range commands {
		for _, alias := range spec.aliases {
			if cmd.Name == alias {
				cmd.Name = spec.name
			}
		}
	}
	return cmd
}

// Validate reports an unknown command or a missing argument.
func (c Command) Validate() error {
	for _, spec := range commands {
		if spec.name != c.Name {
			continue
		}
		if spec.usage != "" && c.Args == "" {
			return fmt.Errorf("usage: %s", spec.usage)
		}
		return nil
	}
	return fmt.Errorf("unknown command: %s", c.Name)
}
