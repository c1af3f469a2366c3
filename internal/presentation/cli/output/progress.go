package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// ProgressBar renders a sync cycle's progress on a single terminal line.
type ProgressBar struct {
	mu      sync.Mutex
	writer  io.Writer
	label   string
	width   int
	colored bool
	drawn   bool
}

// NewProgressBar creates a progress bar for the named queue.
func NewProgressBar(w io.Writer, label string, colored bool) *ProgressBar {
	return &ProgressBar{
		writer:  w,
		label:   label,
		width:   30,
		colored: colored,
	}
}

// Listen is an engine event listener that redraws the bar.
func (p *ProgressBar) Listen(ev outbox.Event) {
	p.Render(ev.Progress)
}

// Render draws p. Items still retrying count as unfinished.
func (p *ProgressBar) Render(progress outbox.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if progress.Total == 0 {
		return
	}

	done := progress.Completed + progress.Failed
	filled := done * p.width / progress.Total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	if p.colored {
		bar = string(ColorGreen) + bar + string(ColorReset)
	}

	// Errors are ignored for terminal output.
	_, _ = fmt.Fprintf(p.writer, "\r%-12s [%s] %d/%d", p.label, bar, progress.Completed, progress.Total)
	if progress.Failed > 0 {
		_, _ = fmt.Fprintf(p.writer, " (%d failed)", progress.Failed)
	}
	p.drawn = true
}

// Finish ends the line if anything was drawn.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		_, _ = fmt.Fprintln(p.writer)
		p.drawn = false
	}
}
