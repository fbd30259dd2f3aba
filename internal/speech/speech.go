// Package speech plays prompts through a text-to-speech engine.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/verte-zerg/readaloud/internal/model"
)

// DefaultCommand is used when no command is configured.
const DefaultCommand = "espeak-ng -v {voice} {text}"

// ErrNoCommand is returned by NewCommand for an empty command line.
var ErrNoCommand = errors.New("empty speech command")

// Speaker reads a prompt aloud.
type Speaker interface {
	Speak(ctx context.Context, text string, lang model.Language) error
}

// Nop is a Speaker that does nothing.
type Nop struct{}

// Speak implements Speaker.
func (Nop) Speak(context.Context, string, model.Language) error { return nil }

// Command runs an external synthesis binary per prompt.
// The placeholders {voice} and {text} are substituted in each argument;
// without a {text} placeholder the prompt is appended as the last argument.
type Command struct {
	name   string
	args   []string
	voices map[model.Language]string
}

// NewCommand parses a command line such as DefaultCommand.
func NewCommand(line string, voices map[model.Language]string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrNoCommand
	}
	v := map[model.Language]string{model.English: "en-us", model.Filipino: "tl"}
	for lang, voice := range voices {
		if voice != "" {
			v[lang] = voice
		}
	}
	return &Command{name: fields[0], args: fields[1:], voices: v}, nil
}

// Args returns the argument list used for text in lang.
func (c *Command) Args(text string, lang model.Language) []string {
	out := make([]string, 0, len(c.args)+1)
	hasText := false
	for _, a := range c.args {
		if strings.Contains(a, "{text}") {
			hasText = true
		}
		a = strings.ReplaceAll(a, "{voice}", c.voices[lang])
		a = strings.ReplaceAll(a, "{text}", text)
		out = append(out, a)
	}
	if !hasText {
		out = append(out, text)
	}
	return out
}

// Speak implements Speaker. It blocks until playback finishes or ctx ends.
func (c *Command) Speak(ctx context.Context, text string, lang model.Language) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, c.name, c.Args(text, lang)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("failed to speak prompt: %w: %s", err, msg)
		}
		return fmt.Errorf("failed to speak prompt: %w", err)
	}
	return nil
}
