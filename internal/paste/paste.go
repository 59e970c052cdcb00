// Package paste simulates the platform paste keystroke (Cmd+V on macOS,
// Ctrl+V elsewhere) by running the desktop's input tool.
package paste

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrUnsupported is returned when no keystroke tool for this desktop is
// installed.
var ErrUnsupported = errors.New("paste: no keystroke tool available")

// DefaultTimeout bounds a single keystroke tool invocation.
const DefaultTimeout = 3 * time.Second

// Command is one way of sending the paste keystroke.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string { return strings.Join(append([]string{c.Name}, c.Args...), " ") }

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Paster sends the paste keystroke to the focused application.
type Paster struct {
	cmds     []Command
	run      Runner
	lookPath func(string) (string, error)
	timeout  time.Duration
	log      *slog.Logger
}

// Option configures a Paster.
type Option func(*Paster)

// WithRunner replaces command execution, for tests.
func WithRunner(r Runner) Option { return func(p *Paster) { p.run = r } }

// WithLookPath replaces the PATH lookup, for tests.
func WithLookPath(f func(string) (string, error)) Option {
	return func(p *Paster) { p.lookPath = f }
}

// WithCommands replaces the detected candidate commands.
func WithCommands(cmds ...Command) Option { return func(p *Paster) { p.cmds = cmds } }

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option { return func(p *Paster) { p.timeout = d } }

// New returns a Paster with candidates for the running platform and
// desktop session.
func New(opts ...Option) *Paster {
	p := &Paster{
		cmds:     Candidates(runtime.GOOS, os.Getenv),
		run:      runCombined,
		lookPath: exec.LookPath,
		timeout:  DefaultTimeout,
		log:      slog.With("component", "paste"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Candidates returns the keystroke commands to try, in order, for goos and
// the session described by getenv.
func Candidates(goos string, getenv func(string) string) []Command {
	switch goos {
	case "darwin":
		return []Command{{
			Name: "osascript",
			Args: []string{"-e", `tell application "System Events" to keystroke "v" using command down`},
		}}
	case "windows":
		return []Command{{
			Name: "powershell",
			Args: []string{"-NoProfile", "-NonInteractive", "-Command",
				`(New-Object -ComObject WScript.Shell).SendKeys('^v')`},
		}}
	}
	xdotool := Command{Name: "xdotool", Args: []string{"key", "--clearmodifiers", "ctrl+v"}}
	var cmds []Command
	if getenv("WAYLAND_DISPLAY") != "" {
		cmds = append(cmds,
			Command{Name: "wtype", Args: []string{"-M", "ctrl", "v", "-m", "ctrl"}},
			// 29 is KEY_LEFTCTRL, 47 is KEY_V.
			Command{Name: "ydotool", Args: []string{"key", "29:1", "47:1", "47:0", "29:0"}},
		)
	}
	if getenv("DISPLAY") != "" || len(cmds) == 0 {
		cmds = append(cmds, xdotool)
	}
	return cmds
}

// SimulatePaste sends the paste keystroke with the first installed tool.
// A tool that is installed but fails is reported; later candidates are
// only tried when earlier ones are missing.
func (p *Paster) SimulatePaste(ctx context.Context) error {
	for _, c := range p.cmds {
		if _, err := p.lookPath(c.Name); err != nil {
			p.log.Debug("paste tool not installed", "tool", c.Name)
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		out, err := p.run(ctx, c.Name, c.Args...)
		cancel()
		if err != nil {
			if msg := strings.TrimSpace(string(out)); msg != "" {
				return fmt.Errorf("paste via %s: %w: %s", c.Name, err, msg)
			}
			return fmt.Errorf("paste via %s: %w", c.Name, err)
		}
		p.log.Debug("paste keystroke sent", "tool", c.Name)
		return nil
	}
	return ErrUnsupported
}

// Tool returns the command SimulatePaste would use, or ErrUnsupported.
func (p *Paster) Tool() (Command, error) {
	for _, c := range p.cmds {
		if _, err := p.lookPath(c.Name); err == nil {
			return c, nil
		}
	}
	return Command{}, ErrUnsupported
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}
