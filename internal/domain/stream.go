package domain

import "context"

// EventKind classifies a single decoded stream line.
type EventKind int

const (
	EventNoise       EventKind = iota // not a data line; ignored
	EventDelta                        // incremental answer text
	EventTerminator                   // sentinel: no more deltas
	EventMalformed                    // data line that could not be parsed; dropped
	EventServerError                  // data line carrying an error field; terminal
)

// String returns a human-readable label for the kind.
func (k EventKind) String() string {
	switch k {
	case EventNoise:
		return "noise"
	case EventDelta:
		return "delta"
	case EventTerminator:
		return "terminator"
	case EventMalformed:
		return "malformed"
	case EventServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// DataEvent is a parsed unit of the answer stream.
type DataEvent struct {
	Kind EventKind
	Text string // delta text, set for EventDelta
	Raw  string // original line, set for EventMalformed
	Err  string // server-reported message, set for EventServerError
}

// RenderTask is the latest display string plus whether it is the terminal render.
type RenderTask struct {
	Text  string
	Final bool
}

// Display receives render tasks. Render is synchronous from the caller's
// perspective and owns all formatting concerns.
type Display interface {
	Render(task RenderTask)
}

// DisplayFunc adapts a plain function to Display.
type DisplayFunc func(task RenderTask)

// Render implements Display.
func (f DisplayFunc) Render(task RenderTask) { f(task) }

// Translator translates a complete answer into the named target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguageName string) (string, error)
}

// LanguageConfig exposes the configured display language.
type LanguageConfig interface {
	// TargetLanguage returns the BCP 47 tag of the display language and
	// whether one is configured at all.
	TargetLanguage() (string, bool)
	// SourceLanguage returns the BCP 47 tag answers are produced in.
	SourceLanguage() string
}

// StreamStartedPayload is the payload for EventStreamStarted events.
type StreamStartedPayload struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
}

// StreamDeltaPayload is the payload for EventStreamDelta events.
type StreamDeltaPayload struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
	Length    int    `json:"length"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
type StreamCompletedPayload struct {
	RequestID  string `json:"request_id"`
	Content    string `json:"content"`
	Translated bool   `json:"translated"`
	DurationMS int64  `json:"duration_ms"`
	Renders    int    `json:"renders"`
	Dropped    int    `json:"dropped"`
	Superseded int    `json:"superseded"`
}

// StreamErrorPayload is the payload for EventStreamError events.
type StreamErrorPayload struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Code      string `json:"code"`
}

// TranslationPayload is the payload for translation events.
type TranslationPayload struct {
	RequestID string `json:"request_id"`
	Target    string `json:"target"`
	Error     string `json:"error,omitempty"`
}
