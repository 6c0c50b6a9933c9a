package tts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

const DefaultCommand = "festival --tts"

// CommandBackend pipes text into a local synthesizer process and waits for
// it to exit.
type CommandBackend struct {
	args []string
}

func NewCommandBackend(command string) (*CommandBackend, error) {
	if command == "" {
		command = DefaultCommand
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}
	return &CommandBackend{args: args}, nil
}

func (c *CommandBackend) Name() string { return "command" }

func (c *CommandBackend) Probe(context.Context) error {
	_, err := exec.LookPath(c.args[0])
	return err
}

func (c *CommandBackend) Say(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Stdin = strings.NewReader(text)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.args[0], err)
	}
	return nil
}
