package display

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive colors work on light and dark terminals. lipgloss drops them
// entirely when NO_COLOR is set.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleDim     = lipgloss.NewStyle().Faint(true)
)

// Symbols holds the glyphs used in status lines.
type Symbols struct {
	Success  string
	Warning  string
	Error    string
	Spinner  string
	Bullet   string
	Ellipsis string
}

var unicodeSymbols = Symbols{
	Success:  "\u2713", // ✓
	Warning:  "\u26A0", // ⚠
	Error:    "\u2717", // ✗
	Spinner:  "\u23F3", // ⏳
	Bullet:   "\u2022", // •
	Ellipsis: "\u2026", // …
}

var asciiSymbols = Symbols{
	Success:  "[OK]",
	Warning:  "[!]",
	Error:    "[ERR]",
	Spinner:  "[...]",
	Bullet:   "*",
	Ellipsis: "...",
}

// DetectSymbols picks ASCII glyphs when ASKBOX_ASCII_SYMBOLS is set and
// Unicode glyphs otherwise.
func DetectSymbols() Symbols {
	if v := os.Getenv("ASKBOX_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return asciiSymbols
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return unicodeSymbols
		}
	}
	// Most modern terminals handle Unicode.
	return unicodeSymbols
}
