package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"askbox/internal/domain"
	"askbox/internal/infra/tracer"
)

// DefaultReadBufferSize is the size of each transport read.
const DefaultReadBufferSize = 4096

// Recorder stores the finished question/answer pair.
type Recorder interface {
	Record(ctx context.Context, question, answer string) error
}

// Config holds pipeline tuning. Zero values use the package defaults.
type Config struct {
	Renderer       RendererConfig
	Replay         ReplayConfig
	ReadBufferSize int
}

// PipelineDeps holds the collaborators of a Pipeline.
type PipelineDeps struct {
	Display    domain.Display
	Translator domain.Translator     // optional
	Languages  domain.LanguageConfig // optional
	Recorder   Recorder              // optional
	Bus        domain.EventBus       // optional
	Logger     *slog.Logger
	Config     Config
}

// Result describes a finished pipeline run.
type Result struct {
	RequestID   string
	Answer      string
	Translated  bool
	Target      string // display name of the translation target, if one was attempted
	Cancelled   bool
	Phase       Phase
	RenderState RenderState
	Stats       RenderStats
	Duration    time.Duration
}

// Pipeline turns one streamed HTTP response into rendered answer text.
// A Pipeline is reusable; every Run gets its own decoder, state and renderer.
type Pipeline struct {
	display    domain.Display
	translator domain.Translator
	languages  domain.LanguageConfig
	recorder   Recorder
	bus        domain.EventBus
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

// NewPipeline creates a pipeline from deps.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	return &Pipeline{
		display:    deps.Display,
		translator: deps.Translator,
		languages:  deps.Languages,
		recorder:   deps.Recorder,
		bus:        deps.Bus,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// run is the mutable state of a single Run call.
type run struct {
	id         string
	question   string
	state      *State
	renderer   *DebouncedRenderer
	controller *TranslationReplayController
	mode       Mode
	start      time.Time
}

// Run reads body until the sentinel, end of stream, a server-reported error
// or cancellation of ctx. Cancellation is not an error: the returned Result
// has Cancelled set and the display keeps whatever it last showed.
func (p *Pipeline) Run(ctx context.Context, question string, body io.Reader) (*Result, error) {
	ctx, span := tracer.StartSpan(ctx, "askbox.pipeline.run")
	defer span.End()

	// renderCtx is cancelled on abnormal exit so a deferred render cannot
	// reach the display after the error has been returned.
	renderCtx, stopRenders := context.WithCancel(ctx)
	defer stopRenders()

	start := p.now()
	rn := &run{
		id:         newRequestID(start),
		question:   question,
		state:      &State{},
		renderer:   NewDebouncedRenderer(p.display, p.cfg.Renderer, p.logger),
		controller: NewTranslationReplayController(p.languages, p.translator, p.cfg.Replay, p.logger),
		start:      start,
	}
	rn.mode = rn.controller.Begin()
	span.SetAttributes(tracer.StringAttr("askbox.request_id", rn.id))

	p.publish(ctx, domain.EventStreamStarted, domain.StreamStartedPayload{RequestID: rn.id, Question: question})
	p.logger.Debug("stream started", "request_id", rn.id, "buffered", rn.mode == ModeBuffered)

	done, err := p.read(renderCtx, rn, body)
	if err != nil {
		stopRenders()
		p.settle(ctx, rn)
		tracer.RecordError(span, err)
		p.publish(ctx, domain.EventStreamError, domain.StreamErrorPayload{
			RequestID: rn.id,
			Error:     err.Error(),
			Code:      string(domain.ErrorCodeOf(err)),
		})
		return nil, err
	}
	if !done {
		return p.cancelled(ctx, rn), nil
	}

	out := rn.controller.Finish(renderCtx, &rn.state.Accumulator, rn.renderer)
	if out.Target != "" {
		p.publishTranslation(ctx, rn.id, out)
	}
	if out.Cancelled {
		return p.cancelled(ctx, rn), nil
	}
	rn.state.Translated = out.Translated
	p.settle(ctx, rn)

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, question, out.Text); err != nil {
			p.logger.Warn("record session failed", "request_id", rn.id, "error", err)
		} else {
			p.publish(ctx, domain.EventSessionRecorded, nil)
		}
	}

	res := p.result(rn)
	res.Answer = out.Text
	res.Translated = out.Translated
	res.Target = out.Target
	res.Duration = out.Duration

	tracer.SetOK(span)
	p.publish(ctx, domain.EventStreamCompleted, domain.StreamCompletedPayload{
		RequestID:  rn.id,
		Content:    res.Answer,
		Translated: res.Translated,
		DurationMS: res.Duration.Milliseconds(),
		Renders:    res.Stats.Rendered,
		Dropped:    res.Stats.Dropped,
		Superseded: res.Stats.Superseded,
	})
	p.logger.Debug("stream completed",
		"request_id", rn.id,
		"chars", len(res.Answer),
		"translated", res.Translated,
		"renders", res.Stats.Rendered,
	)
	return res, nil
}

// read drives the chunk loop. It returns done=true once the stream ended
// normally (sentinel or EOF) and done=false when ctx was cancelled.
func (p *Pipeline) read(ctx context.Context, rn *run, body io.Reader) (bool, error) {
	dec := NewChunkDecoder()
	parser := NewEventParser(p.logger)
	buf := make([]byte, p.cfg.ReadBufferSize)

	for {
		if ctx.Err() != nil {
			return false, nil
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				return false, nil
			}
			finished, err := p.consume(ctx, rn, parser, dec.Feed(buf[:n]))
			if err != nil || finished {
				return err == nil && ctx.Err() == nil, err
			}
		}

		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, io.EOF):
			if tail, ok := dec.Flush(); ok {
				if _, err := p.consume(ctx, rn, parser, []string{tail}); err != nil {
					return false, err
				}
			}
			return ctx.Err() == nil, nil
		case ctx.Err() != nil:
			return false, nil
		default:
			return false, domain.NewDomainError("Pipeline.Run", errors.Join(domain.ErrTransport, rerr), "read stream")
		}
	}
}

// consume parses and applies lines in order. finished reports that the
// sentinel was seen (or ctx was cancelled mid-chunk).
func (p *Pipeline) consume(ctx context.Context, rn *run, parser *EventParser, lines []string) (finished bool, err error) {
	for _, line := range lines {
		if ctx.Err() != nil {
			return true, nil
		}
		ev := parser.Parse(line)
		switch ev.Kind {
		case domain.EventDelta:
			if err := rn.state.Append(ev.Text); err != nil {
				return false, err
			}
			p.publish(ctx, domain.EventStreamDelta, domain.StreamDeltaPayload{
				RequestID: rn.id,
				Content:   ev.Text,
				Length:    len(rn.state.Current()),
			})
			if rn.mode == ModeLive {
				rn.renderer.RequestRender(ctx, domain.RenderTask{Text: rn.state.Current()})
			}
		case domain.EventTerminator:
			return true, nil
		case domain.EventServerError:
			return false, domain.NewDomainError("Pipeline.Run", domain.ErrServerReported, ev.Err)
		case domain.EventMalformed, domain.EventNoise:
			// Dropped; the parser already logged malformed lines.
		}
	}
	return false, nil
}

func (p *Pipeline) cancelled(ctx context.Context, rn *run) *Result {
	rn.state.MarkCancelled()
	p.settle(ctx, rn)
	res := p.result(rn)
	res.Cancelled = true
	res.Answer = rn.state.FullText()
	res.Duration = p.now().Sub(rn.start)
	p.publish(context.WithoutCancel(ctx), domain.EventStreamCancelled, domain.StreamErrorPayload{RequestID: rn.id})
	p.logger.Info("stream cancelled", "request_id", rn.id, "chars", len(res.Answer))
	return res
}

// settle waits for a deferred render to finish or be discarded.
func (p *Pipeline) settle(ctx context.Context, rn *run) {
	if err := rn.renderer.Wait(context.WithoutCancel(ctx)); err != nil {
		p.logger.Debug("renderer wait interrupted", "request_id", rn.id, "error", err)
	}
}

func (p *Pipeline) result(rn *run) *Result {
	return &Result{
		RequestID:   rn.id,
		Phase:       rn.controller.Phase(),
		RenderState: rn.renderer.State(),
		Stats:       rn.renderer.Stats(),
	}
}

func (p *Pipeline) publishTranslation(ctx context.Context, id string, out Outcome) {
	payload := domain.TranslationPayload{RequestID: id, Target: out.Target}
	switch {
	case out.Translated:
		p.publish(ctx, domain.EventTranslationCompleted, payload)
	case out.TranslationErr != nil:
		payload.Error = out.TranslationErr.Error()
		p.publish(ctx, domain.EventTranslationFailed, payload)
	}
}

func (p *Pipeline) publish(ctx context.Context, t domain.EventType, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, domain.NewEvent(t, "", payload))
}

// newRequestID stamps t with the process-wide monotonic entropy, so runs
// started in the same millisecond still get distinct, ordered IDs.
func newRequestID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// AnnotateSpan adds the result's identifiers and counters to span.
func AnnotateSpan(span trace.Span, res *Result) {
	if res == nil {
		return
	}
	span.SetAttributes(
		tracer.StringAttr("askbox.request_id", res.RequestID),
		tracer.StringAttr("askbox.phase", res.Phase.String()),
		tracer.IntAttr("askbox.renders", res.Stats.Rendered),
		tracer.IntAttr("askbox.answer_chars", len(res.Answer)),
	)
}
