package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"askbox/internal/domain"
)

// Default renderer timings.
const (
	DefaultMinRenderInterval = 100 * time.Millisecond
	DefaultDeferredDelay     = 50 * time.Millisecond
)

// RenderState is the state of a DebouncedRenderer.
type RenderState int

const (
	RenderIdle RenderState = iota
	RenderRendering
	RenderPendingSuperseded
)

// String returns a human-readable label for the state.
func (s RenderState) String() string {
	switch s {
	case RenderIdle:
		return "idle"
	case RenderRendering:
		return "rendering"
	case RenderPendingSuperseded:
		return "pending_superseded"
	default:
		return "unknown"
	}
}

// RenderStats counts what happened to render requests.
type RenderStats struct {
	Requested  int // RequestRender calls
	Rendered   int // actual Display.Render calls
	Dropped    int // interim requests dropped by the throttle
	Superseded int // stashed tasks overwritten by a newer one
	Ignored    int // requests after cancellation or after the final render
}

// RendererConfig holds renderer timings. Zero values use the defaults.
type RendererConfig struct {
	MinInterval   time.Duration
	DeferredDelay time.Duration
}

// DebouncedRenderer bounds the rate of Display updates. While a render is in
// flight new tasks go to a single-slot mailbox (last write wins); the freshest
// stashed task is rendered once after a short delay. Final tasks and paced
// frames bypass the throttle; once a final task is rendered every later
// request is a no-op.
type DebouncedRenderer struct {
	display    domain.Display
	logger     *slog.Logger
	limiter    *rate.Limiter
	deferDelay time.Duration
	now        func() time.Time // for testing

	mu         sync.Mutex
	state      RenderState
	pending    *domain.RenderTask
	pendingCtx context.Context
	finalDone  bool
	idle       chan struct{} // closed while the renderer is Idle
	stats      RenderStats
}

// NewDebouncedRenderer creates a renderer writing to display.
func NewDebouncedRenderer(display domain.Display, cfg RendererConfig, logger *slog.Logger) *DebouncedRenderer {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinRenderInterval
	}
	if cfg.DeferredDelay <= 0 {
		cfg.DeferredDelay = DefaultDeferredDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	idle := make(chan struct{})
	close(idle)
	return &DebouncedRenderer{
		display:    display,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		deferDelay: cfg.DeferredDelay,
		now:        time.Now,
		idle:       idle,
	}
}

// RequestRender asks for task to be shown. It renders synchronously when the
// renderer is Idle and the throttle allows it; otherwise the task is stashed
// or dropped as described on DebouncedRenderer.
func (r *DebouncedRenderer) RequestRender(ctx context.Context, task domain.RenderTask) {
	r.request(ctx, task, true)
}

// RequestFrame shows a frame of a paced sequence such as a replay. The
// caller owns the cadence, so the throttle does not apply; the mailbox,
// cancellation and final-render rules do.
func (r *DebouncedRenderer) RequestFrame(ctx context.Context, task domain.RenderTask) {
	r.request(ctx, task, false)
}

func (r *DebouncedRenderer) request(ctx context.Context, task domain.RenderTask, throttled bool) {
	r.mu.Lock()
	r.stats.Requested++

	if ctx.Err() != nil || r.finalDone {
		r.stats.Ignored++
		r.mu.Unlock()
		return
	}

	if r.state != RenderIdle {
		if r.pending != nil && r.pending.Final && !task.Final {
			// A stashed final task is never replaced by an interim one.
			r.stats.Ignored++
			r.mu.Unlock()
			return
		}
		if r.pending != nil {
			r.stats.Superseded++
		}
		t := task
		r.pending = &t
		r.pendingCtx = ctx
		r.state = RenderPendingSuperseded
		r.mu.Unlock()
		return
	}

	now := r.now()
	if throttled && !task.Final && !r.limiter.AllowN(now, 1) {
		r.stats.Dropped++
		r.mu.Unlock()
		return
	}
	r.markRenderedLocked(now)

	r.state = RenderRendering
	r.idle = make(chan struct{})
	r.mu.Unlock()

	r.render(ctx, task)
}

// markRenderedLocked restarts the throttle interval at now. Every actual
// render, throttled or not, counts as the last render.
func (r *DebouncedRenderer) markRenderedLocked(now time.Time) {
	r.limiter = rate.NewLimiter(r.limiter.Limit(), 1)
	r.limiter.AllowN(now, 1)
}

// render performs one Display.Render and then either schedules the stashed
// task or returns to Idle. Only one render runs at a time: callers reach it
// exclusively through the Idle→Rendering transition or the deferred timer.
func (r *DebouncedRenderer) render(ctx context.Context, task domain.RenderTask) {
	r.display.Render(task)

	r.mu.Lock()
	r.stats.Rendered++
	if task.Final {
		r.finalDone = true
		if r.pending != nil {
			r.stats.Ignored++
		}
		r.pending = nil
		r.pendingCtx = nil
	}

	if r.pending == nil {
		r.toIdleLocked()
		r.mu.Unlock()
		return
	}

	next := *r.pending
	nextCtx := r.pendingCtx
	r.pending = nil
	r.pendingCtx = nil
	r.state = RenderRendering
	r.mu.Unlock()

	time.AfterFunc(r.deferDelay, func() {
		r.deferred(nextCtx, next)
	})
}

// deferred renders the stashed task unless its request was cancelled.
func (r *DebouncedRenderer) deferred(ctx context.Context, task domain.RenderTask) {
	if ctx.Err() != nil {
		r.mu.Lock()
		r.stats.Ignored++
		if r.pending != nil {
			r.stats.Ignored++
		}
		r.pending = nil
		r.pendingCtx = nil
		r.toIdleLocked()
		r.mu.Unlock()
		r.logger.Debug("deferred render discarded after cancellation")
		return
	}

	r.mu.Lock()
	r.markRenderedLocked(r.now())
	r.mu.Unlock()

	r.render(ctx, task)
}

func (r *DebouncedRenderer) toIdleLocked() {
	if r.state == RenderIdle {
		return
	}
	r.state = RenderIdle
	close(r.idle)
}

// Wait blocks until the renderer is Idle or ctx ends.
func (r *DebouncedRenderer) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current renderer state.
func (r *DebouncedRenderer) State() RenderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FinalRendered reports whether the terminal render has been shown.
func (r *DebouncedRenderer) FinalRendered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalDone
}

// Stats returns a snapshot of the render counters.
func (r *DebouncedRenderer) Stats() RenderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
