package stream

import (
	"strings"

	"askbox/internal/domain"
)

// Accumulator holds the full-so-far answer text. Deltas are appended in
// arrival order; Replace swaps in the final (translated) text exactly once.
type Accumulator struct {
	sb       strings.Builder
	final    string
	replaced bool
}

// Append adds delta to the end of the text.
func (a *Accumulator) Append(delta string) error {
	if a.replaced {
		return domain.NewDomainError("Accumulator.Append", domain.ErrInvalidState, "text already replaced")
	}
	a.sb.WriteString(delta)
	return nil
}

// Current returns the accumulated text.
func (a *Accumulator) Current() string {
	if a.replaced {
		return a.final
	}
	return a.sb.String()
}

// Replace substitutes the accumulated text with finalText.
func (a *Accumulator) Replace(finalText string) error {
	if a.replaced {
		return domain.NewDomainError("Accumulator.Replace", domain.ErrInvalidState, "text already replaced")
	}
	a.final = finalText
	a.replaced = true
	return nil
}

// Replaced reports whether Replace has been called.
func (a *Accumulator) Replaced() bool { return a.replaced }

// State is the per-request record of one pipeline run. It is never shared
// between runs.
type State struct {
	Accumulator
	Cancelled  bool
	Translated bool
}

// FullText returns the accumulated (or replaced) answer.
func (s *State) FullText() string { return s.Current() }

// MarkCancelled sets the cancelled flag. It never resets.
func (s *State) MarkCancelled() { s.Cancelled = true }
