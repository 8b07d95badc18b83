// Package console runs the interactive operator loops for the server and
// client roles.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// QuitCommand ends either loop. It is never transmitted.
const QuitCommand = "quit"

// ErrQuit is returned by ReadLine when the operator types QuitCommand
var ErrQuit = errors.New("console: quit")

type line struct {
	text string
	err  error
}

// Options controls console presentation
type Options struct {
	// Prompt is printed before every read, empty for none
	Prompt string
	// NoColor disables colored output
	NoColor bool
}

// Console reads operator lines and prints loop output
type Console struct {
	in     io.Reader
	out    io.Writer
	prompt string

	banner *color.Color
	label  *color.Color
	warn   *color.Color

	start sync.Once
	lines chan line

	mu sync.Mutex // serializes writes
}

// New creates a console over in and out
func New(in io.Reader, out io.Writer, opts Options) *Console {
	c := &Console{
		in:     in,
		out:    out,
		prompt: opts.Prompt,
		banner: color.New(color.FgCyan, color.Bold),
		label:  color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		lines:  make(chan line),
	}
	if opts.NoColor {
		c.banner.DisableColor()
		c.label.DisableColor()
		c.warn.DisableColor()
	}
	return c
}

// ReadLine returns the next input line without its line terminator. It
// returns ErrQuit for QuitCommand, io.EOF once input is exhausted and
// ctx.Err() if ctx ends first.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.start.Do(func() { go c.scan() })

	if c.prompt != "" {
		c.write(c.prompt)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		if l.err != nil {
			return "", l.err
		}
		if l.text == QuitCommand {
			return "", ErrQuit
		}
		return l.text, nil
	}
}

// scan feeds lines to ReadLine. A blocked read on in outlives a cancelled
// ReadLine; the next call picks up where it left off.
func (c *Console) scan() {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		c.lines <- line{text: strings.TrimSuffix(scanner.Text(), "\r")}
	}
	if err := scanner.Err(); err != nil {
		c.lines <- line{err: fmt.Errorf("failed to read input: %w", err)}
	}
}

// Banner prints a loop header
func (c *Console) Banner(format string, args ...any) {
	c.write(c.banner.Sprintf(format, args...) + "\n")
}

// Received prints an incoming message after its label
func (c *Console) Received(label, text string) {
	c.write(c.label.Sprint(label+":") + " " + text + "\n")
}

// Warnf prints a non-fatal notice
func (c *Console) Warnf(format string, args ...any) {
	c.write(c.warn.Sprintf(format, args...) + "\n")
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}
