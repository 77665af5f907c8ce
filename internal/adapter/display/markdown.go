package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"

	"askbox/internal/domain"
)

const defaultWordWrap = 100

// MarkdownConfig configures a Markdown display.
type MarkdownConfig struct {
	// Style is a glamour standard style ("dark", "light", "notty", ...).
	// Empty selects one from the terminal background.
	Style string
	// WordWrap is the wrap width; 0 uses the default.
	WordWrap int
	// Symbols for the progress line; zero value uses DetectSymbols.
	Symbols Symbols
}

// Markdown shows a one-line progress indicator on the status writer while
// the answer streams and renders the final text as markdown on the output
// writer. If markdown rendering fails the raw text is printed. A stream that
// ends without a final render (Ctrl-C) leaves its last text printed raw.
type Markdown struct {
	mu       sync.Mutex
	out      io.Writer
	status   io.Writer
	renderer *glamour.TermRenderer
	symbols  Symbols
	progress bool
	partial  string // last interim text, shown raw if no final render comes
	done     bool
}

var _ domain.Display = (*Markdown)(nil)

// NewMarkdown creates a Markdown display.
func NewMarkdown(out, status io.Writer, cfg MarkdownConfig) (*Markdown, error) {
	wrap := cfg.WordWrap
	if wrap <= 0 {
		wrap = defaultWordWrap
	}
	styleOpt := glamour.WithAutoStyle()
	if cfg.Style != "" {
		styleOpt = glamour.WithStandardStyle(cfg.Style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(wrap))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}

	symbols := cfg.Symbols
	if symbols == (Symbols{}) {
		symbols = DetectSymbols()
	}
	return &Markdown{out: out, status: status, renderer: r, symbols: symbols}, nil
}

// Render implements domain.Display.
func (m *Markdown) Render(task domain.RenderTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}

	if !task.Final {
		m.partial = task.Text
		m.progress = true
		fmt.Fprintf(m.status, "\r\033[K%s %s",
			styleInfo.Render(m.symbols.Spinner),
			styleMuted.Render(fmt.Sprintf("receiving%s %d chars", m.symbols.Ellipsis, utf8.RuneCountInString(task.Text))),
		)
		return
	}

	m.done = true
	m.partial = ""
	m.clearProgress()
	rendered, err := m.renderer.Render(task.Text)
	if err != nil || strings.TrimSpace(rendered) == "" {
		rendered = task.Text
	}
	io.WriteString(m.out, rendered)
	if !strings.HasSuffix(rendered, "\n") {
		io.WriteString(m.out, "\n")
	}
}

// Close replaces a progress line left behind by an unfinished stream with
// the text received so far. Later renders are ignored. Close is idempotent.
func (m *Markdown) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearProgress()
	if m.done {
		return
	}
	m.done = true
	if m.partial == "" {
		return
	}
	io.WriteString(m.out, m.partial)
	if !strings.HasSuffix(m.partial, "\n") {
		io.WriteString(m.out, "\n")
	}
	m.partial = ""
}

func (m *Markdown) clearProgress() {
	if m.progress {
		io.WriteString(m.status, "\r\033[K")
		m.progress = false
	}
}
