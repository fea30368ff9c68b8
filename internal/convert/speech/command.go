// Package speech provides SpeechEngine backends for the visual profile.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
)

// Command speaks through a command-line synthesizer such as espeak-ng,
// which takes voice, speed, pitch and amplitude flags followed by the text.
type Command struct {
	Path  string // binary name or path
	Voice string // overrides the voice derived from the utterance locale
}

// NewCommand returns a Command for bin, typically "espeak-ng".
func NewCommand(bin string) *Command {
	return &Command{Path: bin}
}

// Available reports whether the binary can be found.
func (c *Command) Available() bool {
	if c == nil || c.Path == "" {
		return false
	}
	_, err := exec.LookPath(c.Path)
	return err == nil
}

// Speak starts the synthesizer and returns immediately. Cancelling ctx or
// the playback kills the process; that counts as a stop, not a failure.
func (c *Command) Speak(ctx context.Context, u convert.Utterance) (*convert.Playback, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.Path, c.args(u)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	slog.Debug("speech started", "bin", c.Path, "pid", cmd.Process.Pid, "chars", len(u.Text))

	pb := convert.NewPlayback(cancel)
	go func() {
		err := cmd.Wait()
		if ctx.Err() != nil {
			err = nil
		} else if err != nil {
			err = fmt.Errorf("%s: %w: %s", c.Path, err, strings.TrimSpace(stderr.String()))
		}
		cancel()
		pb.Finish(err)
	}()
	return pb, nil
}

func (c *Command) args(u convert.Utterance) []string {
	voice := c.Voice
	if voice == "" {
		voice = voiceFor(u.Locale)
	}
	// espeak-ng defaults: 175 wpm, pitch 50, amplitude 100.
	return []string{
		"-v", voice,
		"-s", strconv.Itoa(int(175 * orOne(u.Rate))),
		"-p", strconv.Itoa(clamp(int(50*orOne(u.Pitch)), 0, 99)),
		"-a", strconv.Itoa(clamp(int(100*orOne(u.Volume)), 0, 200)),
		"--", u.Text,
	}
}

func voiceFor(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	if lang == "" {
		return "ar"
	}
	return strings.ToLower(lang)
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}

// ErrUnavailable is returned by Unavailable.Speak.
var ErrUnavailable = errors.New("no speech engine configured")

// Unavailable is the engine used when no synthesizer is installed.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Speak(context.Context, convert.Utterance) (*convert.Playback, error) {
	return nil, ErrUnavailable
}
