// Package output renders command results as colored text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Format selects how commands print results.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text", "json" or "" (text), ignoring case and spaces.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown format: %s (must be text or json)", s)
}

// Formatter writes command output. It is safe for concurrent use.
type Formatter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	color  bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithWriter sets the destination. The default is os.Stdout.
func WithWriter(w io.Writer) Option { return func(f *Formatter) { f.w = w } }

// WithFormat sets the output format.
func WithFormat(format Format) Option { return func(f *Formatter) { f.format = format } }

// WithColor forces color on or off.
func WithColor(on bool) Option { return func(f *Formatter) { f.color = on } }

// NewFormatter returns a text formatter on stdout, colored when stdout is a
// terminal, with opts applied.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{w: os.Stdout, format: FormatText, color: ColorSupported(os.Stdout)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format returns the output format.
func (f *Formatter) Format() Format { return f.format }

// IsJSON reports whether output is JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Writer returns the destination.
func (f *Formatter) Writer() io.Writer { return f.w }

// Println writes one formatted line.
func (f *Formatter) Println(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.w, format+"\n", args...)
	return err
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) status(mark string, c Color, format string, args []any) error {
	return f.Println("%s", paint(f.color, mark+" "+fmt.Sprintf(format, args...), c))
}

// Success prints a green check line.
func (f *Formatter) Success(format string, args ...any) error {
	return f.status("✓", ColorGreen, format, args)
}

// Error prints a red cross line.
func (f *Formatter) Error(format string, args ...any) error {
	return f.status("✗", ColorRed, format, args)
}

// Warning prints a yellow warning line.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.status("⚠", ColorYellow, format, args)
}

// Info prints a blue info line.
func (f *Formatter) Info(format string, args ...any) error {
	return f.status("ℹ", ColorBlue, format, args)
}

// Bold returns text in bold when color is on.
func (f *Formatter) Bold(text string) string { return paint(f.color, text, ColorBold) }

// Dim returns text muted when color is on.
func (f *Formatter) Dim(text string) string { return paint(f.color, text, ColorDim) }

// Header prints title underlined.
func (f *Formatter) Header(title string) error {
	return f.Println("%s\n%s", f.Bold(title), strings.Repeat("─", len([]rune(title))))
}

// Item prints an indented "key: value" line.
func (f *Formatter) Item(key, value string) error {
	return f.Println("  %s: %s", f.Dim(key), value)
}
