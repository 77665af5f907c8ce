package display

import (
	"fmt"
	"strings"
	"time"
)

// Summary describes a finished run for the status footer.
type Summary struct {
	Duration   time.Duration
	Renders    int
	Translated bool
	Target     string // display name of the target language
	Cancelled  bool
	Err        error
}

// Footer returns a single styled status line for s.
func Footer(s Summary, symbols Symbols) string {
	var head string
	switch {
	case s.Err != nil:
		head = styleError.Render(symbols.Error + " " + s.Err.Error())
	case s.Cancelled:
		head = styleWarning.Render(symbols.Warning + " cancelled")
	default:
		head = styleSuccess.Render(symbols.Success + " done")
	}

	parts := []string{head}
	if s.Duration > 0 {
		parts = append(parts, styleMuted.Render(s.Duration.Round(10*time.Millisecond).String()))
	}
	if s.Renders > 0 {
		parts = append(parts, styleMuted.Render(fmt.Sprintf("%d renders", s.Renders)))
	}
	if s.Target != "" {
		if s.Translated {
			parts = append(parts, styleInfo.Render("translated to "+s.Target))
		} else if s.Err == nil && !s.Cancelled {
			parts = append(parts, styleWarning.Render("translation to "+s.Target+" unavailable"))
		}
	}
	return strings.Join(parts, styleDim.Render(" "+symbols.Bullet+" "))
}
