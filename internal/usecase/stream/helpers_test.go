package stream

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"askbox/internal/domain"
	"askbox/internal/infra/logger"
)

func discardLogger() *slog.Logger { return logger.Discard() }

// bufferLogger returns a debug-level logger writing into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// recordingDisplay remembers every task it is asked to render. onRender, if
// set, runs inside Render before the task is recorded.
type recordingDisplay struct {
	mu       sync.Mutex
	tasks    []domain.RenderTask
	onRender func(domain.RenderTask)
}

func (d *recordingDisplay) Render(task domain.RenderTask) {
	if d.onRender != nil {
		d.onRender(task)
	}
	d.mu.Lock()
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()
}

func (d *recordingDisplay) Tasks() []domain.RenderTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.RenderTask(nil), d.tasks...)
}

func (d *recordingDisplay) Texts() []string {
	var out []string
	for _, t := range d.Tasks() {
		out = append(out, t.Text)
	}
	return out
}

func (d *recordingDisplay) Last() (domain.RenderTask, bool) {
	tasks := d.Tasks()
	if len(tasks) == 0 {
		return domain.RenderTask{}, false
	}
	return tasks[len(tasks)-1], true
}

func (d *recordingDisplay) FinalCount() int {
	n := 0
	for _, t := range d.Tasks() {
		if t.Final {
			n++
		}
	}
	return n
}

type staticLanguages struct {
	target string
	source string
}

func (l staticLanguages) TargetLanguage() (string, bool) { return l.target, l.target != "" }
func (l staticLanguages) SourceLanguage() string         { return l.source }

type translatorFunc func(ctx context.Context, text, target string) (string, error)

func (f translatorFunc) Translate(ctx context.Context, text, target string) (string, error) {
	return f(ctx, text, target)
}

// fastRenderer never throttles, so every interim request reaches the display.
var fastRenderer = RendererConfig{MinInterval: 1, DeferredDelay: 1}
