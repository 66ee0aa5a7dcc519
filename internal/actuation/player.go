package actuation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// playTimeout bounds one playback; the longest sequence is about half a second.
const playTimeout = 5 * time.Second

// Player plays one WAV clip to completion.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// CommandPlayer pipes WAV data to the stdin of an external command such as
// "aplay -q -".
type CommandPlayer struct {
	name string
	args []string
}

// NewCommandPlayer splits command on whitespace.
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("actuation: empty audio command")
	}
	return &CommandPlayer{name: fields[0], args: fields[1:]}, nil
}

// Play runs the command and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Stdin = bytes.NewReader(wav)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("play %s: %w: %s", p.name, err, msg)
		}
		return fmt.Errorf("play %s: %w", p.name, err)
	}
	return nil
}
