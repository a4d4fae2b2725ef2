package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	name, args, _ := strings.Cut(input, " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

type commandSpec struct {
	names   []string
	usage   string
	needArg bool
}

var commands = []commandSpec{
	{names: []string{"search", "s"}, usage: ":search <query>", needArg: true},
	{names: []string{"name"}, usage: ":name <display name>", needArg: true},
	{names: []string{"retry"}, usage: ":retry"},
	{names: []string{"refresh", "r"}, usage: ":refresh"},
	{names: []string{"qr"}, usage: ":qr"},
	{names: []string{"clear-local"}, usage: ":clear-local"},
	{names: []string{"help", "h"}, usage: ":help"},
	{names: []string{"quit", "q"}, usage: ":quit"},
}

// Canonical resolves aliases and checks arguments. The returned command
// carries the primary name.
func (c Command) Canonical() (Command, error) {
	for _, def := range commands {
		for _, n := range def.names {
			if n != c.Name {
				continue
			}
			if def.needArg && c.Args == "" {
				return c, fmt.Errorf("usage: %s", def.usage)
			}
			return Command{Name: def.names[0], Args: c.Args}, nil
		}
	}
	return c, fmt.Errorf("unknown command %q", c.Name)
}
