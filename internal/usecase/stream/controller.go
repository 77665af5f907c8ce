package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"askbox/internal/domain"
)

// Default replay pacing: 8 runes every 16ms.
const (
	DefaultReplayStep = 8
	DefaultReplayTick = 16 * time.Millisecond
)

// Phase is the state of a TranslationReplayController.
type Phase int

const (
	PhaseStreaming Phase = iota
	PhaseNeedsTranslation
	PhaseTranslating
	PhaseReplaying
	PhaseFinalize
	PhaseCancelled
)

// String returns a human-readable label for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStreaming:
		return "streaming"
	case PhaseNeedsTranslation:
		return "needs_translation"
	case PhaseTranslating:
		return "translating"
	case PhaseReplaying:
		return "replaying"
	case PhaseFinalize:
		return "finalize"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Mode is how deltas are displayed while the stream is being read.
type Mode int

const (
	// ModeLive renders accumulated text as deltas arrive.
	ModeLive Mode = iota
	// ModeBuffered holds the text back until it has been translated.
	ModeBuffered
)

// ReplayConfig holds replay pacing. Step <= 0 shows the final text at once.
type ReplayConfig struct {
	Step int
	Tick time.Duration
}

// Outcome is the result of TranslationReplayController.Finish.
type Outcome struct {
	Text           string
	Translated     bool
	Cancelled      bool
	Target         string // display name of the target language, if any
	TranslationErr error
	Duration       time.Duration
}

// TranslationReplayController decides, once the stream has ended, whether the
// answer must be translated. When it must, it performs one blocking
// translation call and replays the result at a fixed cadence so the display
// still looks like a stream.
type TranslationReplayController struct {
	languages  domain.LanguageConfig
	translator domain.Translator
	replay     ReplayConfig
	logger     *slog.Logger
	now        func() time.Time

	phase   Phase
	started time.Time
}

// NewTranslationReplayController creates a controller. translator may be nil,
// in which case no translation is ever attempted.
func NewTranslationReplayController(languages domain.LanguageConfig, translator domain.Translator, replay ReplayConfig, logger *slog.Logger) *TranslationReplayController {
	if logger == nil {
		logger = slog.Default()
	}
	if replay.Tick <= 0 {
		replay.Tick = DefaultReplayTick
	}
	return &TranslationReplayController{
		languages:  languages,
		translator: translator,
		replay:     replay,
		logger:     logger,
		now:        time.Now,
	}
}

// Phase returns the current phase.
func (c *TranslationReplayController) Phase() Phase { return c.phase }

// Begin enters the Streaming phase and reports how deltas should be shown.
func (c *TranslationReplayController) Begin() Mode {
	c.phase = PhaseStreaming
	c.started = c.now()
	if _, ok := c.NeedsTranslation(); ok {
		return ModeBuffered
	}
	return ModeLive
}

// NeedsTranslation reports whether a target language is configured whose
// language family differs from the source, and returns its display name.
func (c *TranslationReplayController) NeedsTranslation() (string, bool) {
	if c.languages == nil || c.translator == nil {
		return "", false
	}
	target, ok := c.languages.TargetLanguage()
	if !ok || strings.TrimSpace(target) == "" {
		return "", false
	}
	source := c.languages.SourceLanguage()
	if sameFamily(target, source) {
		return "", false
	}
	return languageName(target), true
}

// Finish runs the post-stream phases. The returned Outcome never carries a
// fatal error: translation failures fall back to the original text.
func (c *TranslationReplayController) Finish(ctx context.Context, acc *Accumulator, r *DebouncedRenderer) Outcome {
	c.phase = PhaseNeedsTranslation
	target, needed := c.NeedsTranslation()
	text := acc.Current()

	if !needed || strings.TrimSpace(text) == "" {
		return c.finalize(ctx, r, Outcome{Text: text})
	}

	out := Outcome{Target: target}

	c.phase = PhaseTranslating
	translated, err := c.translator.Translate(ctx, text, target)
	if ctx.Err() != nil {
		return c.cancelled(text)
	}
	switch {
	case err != nil:
		out.TranslationErr = domain.WrapOp("Translator.Translate", errors.Join(domain.ErrTranslationFailed, err))
	case strings.TrimSpace(translated) == "":
		out.TranslationErr = domain.NewDomainError("Translator.Translate", domain.ErrTranslationFailed, "empty translation")
	default:
		if rerr := acc.Replace(translated); rerr != nil {
			out.TranslationErr = rerr
		} else {
			out.Translated = true
		}
	}
	if out.TranslationErr != nil {
		c.logger.Warn("translation failed, showing original text",
			"target", target,
			"error", out.TranslationErr,
		)
	}
	out.Text = acc.Current()

	c.phase = PhaseReplaying
	if !c.replayText(ctx, out.Text, r) {
		return c.cancelled(out.Text)
	}
	return c.finalize(ctx, r, out)
}

// replayText renders growing rune prefixes of text, one step per tick. The
// last prefix is the final render. It returns false if ctx ended first.
func (c *TranslationReplayController) replayText(ctx context.Context, text string, r *DebouncedRenderer) bool {
	runes := []rune(text)
	if c.replay.Step <= 0 || len(runes) == 0 {
		return ctx.Err() == nil
	}

	ticker := time.NewTicker(c.replay.Tick)
	defer ticker.Stop()

	pos := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		pos += c.replay.Step
		if pos >= len(runes) {
			// The full text is rendered by finalize.
			return true
		}
		r.RequestFrame(ctx, domain.RenderTask{Text: string(runes[:pos])})

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (c *TranslationReplayController) finalize(ctx context.Context, r *DebouncedRenderer, out Outcome) Outcome {
	if ctx.Err() != nil {
		return c.cancelled(out.Text)
	}
	c.phase = PhaseFinalize
	r.RequestRender(ctx, domain.RenderTask{Text: out.Text, Final: true})
	out.Duration = c.now().Sub(c.started)
	return out
}

func (c *TranslationReplayController) cancelled(text string) Outcome {
	c.phase = PhaseCancelled
	return Outcome{Text: text, Cancelled: true, Duration: c.now().Sub(c.started)}
}

// sameFamily compares the base languages of two BCP 47 tags, so "zh-TW" and
// "zh-CN" match. Unparseable tags fall back to a case-insensitive comparison.
func sameFamily(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

// languageName returns the English name of tag, e.g. "fr" → "French".
// Unparseable tags are returned unchanged.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.Languages(language.English).Name(t); name != "" {
		return name
	}
	return tag
}
