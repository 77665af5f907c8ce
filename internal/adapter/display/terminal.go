// Package display renders answer text to a terminal.
package display

import (
	"io"
	"strings"
	"sync"

	"askbox/internal/domain"
)

// Terminal writes answer text incrementally: each render prints only the
// part of the text not yet on screen. If a render does not extend what was
// shown (the text was replaced), the new text is printed on a fresh line.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	shown string
	done  bool
}

var _ domain.Display = (*Terminal)(nil)

// NewTerminal creates a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Render implements domain.Display.
func (t *Terminal) Render(task domain.RenderTask) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}

	if strings.HasPrefix(task.Text, t.shown) {
		io.WriteString(t.w, task.Text[len(t.shown):])
	} else {
		if t.shown != "" && !strings.HasSuffix(t.shown, "\n") {
			io.WriteString(t.w, "\n")
		}
		io.WriteString(t.w, task.Text)
	}
	t.shown = task.Text

	if task.Final {
		t.done = true
		if !strings.HasSuffix(task.Text, "\n") {
			io.WriteString(t.w, "\n")
		}
	}
}

// Shown returns the text currently on screen.
func (t *Terminal) Shown() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}
