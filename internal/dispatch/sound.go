package dispatch

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// SoundChannel plays an audible cue on the crib host, typically wired
// as an optional channel so a dead speaker never blocks email.
type SoundChannel struct {
	logger  *zap.Logger
	command string
	args    []string
}

// NewSoundChannel creates the sound channel. command is the player
// binary (e.g. aplay) and args usually name the alert clip; an empty
// command leaves the channel unconfigured.
func NewSoundChannel(logger *zap.Logger, command string, args ...string) *SoundChannel {
	return &SoundChannel{
		logger:  logger.Named("sound"),
		command: command,
		args:    args,
	}
}

func (c *SoundChannel) Name() string { return "sound" }

func (c *SoundChannel) Send(ctx context.Context, entry *model.AlertQueueEntry) error {
	if c.command == "" {
		return ErrNotConfigured
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to play alert sound: %w (%s)", err, string(output))
	}

	c.logger.Info("Alert sound played",
		zap.String("entry_id", entry.ID),
		zap.String("command", c.command))
	return nil
}
