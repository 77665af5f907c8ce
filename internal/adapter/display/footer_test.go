package display

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFooter(t *testing.T) {
	tests := []struct {
		name     string
		summary  Summary
		contains []string
		excludes []string
	}{
		{
			name:     "done",
			summary:  Summary{Duration: 1234 * time.Millisecond, Renders: 3},
			contains: []string{"[OK] done", "1.23s", "3 renders"},
		},
		{
			name:     "translated",
			summary:  Summary{Translated: true, Target: "French"},
			contains: []string{"translated to French"},
		},
		{
			name:     "translation fallback",
			summary:  Summary{Target: "French"},
			contains: []string{"translation to French unavailable"},
		},
		{
			name:     "cancelled",
			summary:  Summary{Cancelled: true, Target: "French"},
			contains: []string{"[!] cancelled"},
			excludes: []string{"unavailable"},
		},
		{
			name:     "error",
			summary:  Summary{Err: errors.New("boom")},
			contains: []string{"[ERR] boom"},
			excludes: []string{"done"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Footer(tt.summary, asciiSymbols)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestDetectSymbols(t *testing.T) {
	t.Setenv("ASKBOX_ASCII_SYMBOLS", "1")
	assert.Equal(t, asciiSymbols, DetectSymbols())

	t.Setenv("ASKBOX_ASCII_SYMBOLS", "")
	t.Setenv("LC_ALL", "en_US.UTF-8")
	assert.Equal(t, unicodeSymbols, DetectSymbols())
}
