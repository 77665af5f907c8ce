package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/buger/jsonparser"

	"askbox/internal/domain"
)

const (
	dataPrefix    = "data:"
	doneSentinel  = "[DONE]"
	maxLoggedLine = 200
)

// contentPaths lists where delta text may live in a data payload, in lookup
// order: OpenAI-style choice delta, then flat "content", then "response".
var contentPaths = [][]string{
	{"choices", "[0]", "delta", "content"},
	{"content"},
	{"response"},
}

// EventParser classifies stream lines and extracts delta text.
// It never returns an error: bad lines become EventMalformed.
type EventParser struct {
	logger *slog.Logger
}

// NewEventParser creates a parser that logs dropped lines to logger.
func NewEventParser(logger *slog.Logger) *EventParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventParser{logger: logger}
}

// Parse classifies a single line.
func (p *EventParser) Parse(line string) domain.DataEvent {
	if !strings.HasPrefix(line, dataPrefix) {
		return domain.DataEvent{Kind: domain.EventNoise}
	}
	payload := strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " ")

	if strings.TrimSpace(payload) == doneSentinel {
		return domain.DataEvent{Kind: domain.EventTerminator}
	}

	data := []byte(payload)
	if !json.Valid(data) {
		p.logger.Warn("dropping malformed stream line", "line", truncate(line))
		return domain.DataEvent{Kind: domain.EventMalformed, Raw: line}
	}

	if msg, ok := serverError(data); ok {
		return domain.DataEvent{Kind: domain.EventServerError, Err: msg}
	}

	for _, path := range contentPaths {
		text, ok := stringAt(data, path...)
		if ok {
			return domain.DataEvent{Kind: domain.EventDelta, Text: text}
		}
	}

	p.logger.Debug("dropping stream line without content", "line", truncate(line))
	return domain.DataEvent{Kind: domain.EventMalformed, Raw: line}
}

// stringAt returns the string at path. A JSON null counts as an empty string;
// any other non-string type is treated as absent.
func stringAt(data []byte, path ...string) (string, bool) {
	value, typ, _, err := jsonparser.Get(data, path...)
	if err != nil {
		return "", false
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return "", false
		}
		return s, true
	case jsonparser.Null:
		return "", true
	default:
		return "", false
	}
}

// serverError extracts an "error" field: either a string or an object with a
// "message". A null error is not an error.
func serverError(data []byte) (string, bool) {
	value, typ, _, err := jsonparser.Get(data, "error")
	if err != nil {
		return "", false
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			s = string(value)
		}
		if s == "" {
			s = "unknown error"
		}
		return s, true
	case jsonparser.Object:
		if msg, err := jsonparser.GetString(value, "message"); err == nil && msg != "" {
			return msg, true
		}
		return string(value), true
	case jsonparser.Null:
		return "", false
	case jsonparser.Boolean:
		if string(value) == "false" {
			return "", false
		}
		return "unknown error", true
	default:
		return string(value), true
	}
}

func truncate(s string) string {
	if len(s) <= maxLoggedLine {
		return s
	}
	return s[:maxLoggedLine] + "..."
}
