package channel

import (
	"context"
	"strings"
)

// Options controls how a command's output is delivered.
type Options struct {
	// Stream copies stdout to the channel's console writer as it arrives
	// instead of returning it. Output.Text is empty when streaming.
	Stream bool

	// SplitLines fills Output.Lines with the output split on newlines.
	SplitLines bool
}

// Output is the text a command produced.
type Output struct {
	Text  string
	Lines []string
}

// Channel runs commands against a device.
//
// An empty serial addresses the adb server itself (e.g. "devices -l").
// Implementations must be safe for concurrent use across different serials.
type Channel interface {
	Run(ctx context.Context, serial string, args []string, opts Options) (Output, error)
}

// Logger defines the logging interface used by the channel.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewOutput builds an Output from raw command text, normalising CRLF line
// endings (older adbd shells emit them) and splitting if requested.
func NewOutput(raw string, opts Options) Output {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	out := Output{Text: text}
	if opts.SplitLines {
		out.Lines = SplitLines(text)
	}
	return out
}

// SplitLines splits text on newlines, dropping a single trailing empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
