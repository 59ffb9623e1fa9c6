package recipe

import (
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// CommandSet is a YAML field accepting either a single command string
// or a list of command strings.
type CommandSet struct {
	SingleCommand string
	MultiCommand  []string
}

// List returns the commands in declaration order.
func (c *CommandSet) List() []string {
	if c == nil {
		return []string{}
	}
	if len(c.MultiCommand) > 0 {
		return c.MultiCommand
	}
	if c.SingleCommand != "" {
		return []string{c.SingleCommand}
	}
	return []string{}
}

func (c *CommandSet) MarshalYAML() (interface{}, error) {
	if c == nil {
		return nil, nil
	}
	if len(c.MultiCommand) == 0 && c.SingleCommand != "" {
		return c.SingleCommand, nil
	}
	return c.List(), nil
}

func (c *CommandSet) UnmarshalYAML(unmarshal func(interface{}) error) error {
	err1 := unmarshal(&(c.MultiCommand))
	err2 := unmarshal(&(c.SingleCommand))
	if err1 == nil || err2 == nil {
		return nil
	}
	return err1
}

// Invocation is a shell-level command parsed into the binary to
// execute and its arguments. Invocations are declared by the recipe
// and handed off to external tooling verbatim.
type Invocation struct {
	Binary string
	Args   []string
}

// ParseInvocation splits a declared command string into an Invocation
// using shell quoting rules.
func ParseInvocation(command string) (Invocation, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return Invocation{}, errors.Wrapf(err, "parsing command '%s'", command)
	}
	if len(args) == 0 {
		return Invocation{}, errors.Errorf("command '%s' is empty", command)
	}

	inv := Invocation{Binary: args[0]}
	if len(args) > 1 {
		inv.Args = args[1:]
	}
	return inv, nil
}

func (i Invocation) String() string {
	return strings.Join(append([]string{i.Binary}, i.Args...), " ")
}
