package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateProvider(cfg, ve)
	validateStream(cfg, ve)
	validateTranslation(cfg, ve)
	validateSession(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"":       true,
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateProvider(cfg *Config, ve *ValidationError) {
	p := cfg.Provider
	if p.BaseURL == "" {
		ve.Add("provider.base_url must not be empty")
	} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("provider.base_url %q is not an absolute URL", p.BaseURL)
	}
	if p.Model == "" {
		ve.Add("provider.model must not be empty")
	}
	if strings.HasPrefix(p.APIKey, "enc:") {
		ve.Add("provider.api_key is encrypted but ASKBOX_CONFIG_KEY is not set")
	}
	if p.ConnTimeout < 0 {
		ve.Add("provider.conn_timeout must be >= 0")
	}
	if p.RespTimeout < 0 {
		ve.Add("provider.resp_timeout must be >= 0")
	}
	if p.CircuitBreaker.Timeout < 0 {
		ve.Add("provider.circuit_breaker.timeout must be >= 0")
	}
}

func validateStream(cfg *Config, ve *ValidationError) {
	s := cfg.Stream
	if s.MinRenderInterval <= 0 {
		ve.Add("stream.min_render_interval must be > 0")
	}
	if s.DeferredRenderDelay <= 0 {
		ve.Add("stream.deferred_render_delay must be > 0")
	}
	if s.ReplayStep < 0 {
		ve.Add("stream.replay_step must be >= 0")
	}
	if s.ReplayStep > 0 && s.ReplayTick <= 0 {
		ve.Add("stream.replay_tick must be > 0 when replay_step is set")
	}
	if s.ReadBufferSize <= 0 {
		ve.Add("stream.read_buffer_size must be > 0")
	}
}

func validateTranslation(cfg *Config, ve *ValidationError) {
	t := cfg.Translation
	if t.TargetLanguage != "" {
		if _, err := language.Parse(t.TargetLanguage); err != nil {
			ve.Add("translation.target_language %q is not a valid BCP 47 tag", t.TargetLanguage)
		}
	}
	if t.SourceLanguage != "" {
		if _, err := language.Parse(t.SourceLanguage); err != nil {
			ve.Add("translation.source_language %q is not a valid BCP 47 tag", t.SourceLanguage)
		}
	}
	if t.Timeout <= 0 {
		ve.Add("translation.timeout must be > 0")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	s := cfg.Session
	if s.Key == "" {
		ve.Add("session.key must not be empty")
	}
	if s.MaxEntries < 2 {
		ve.Add("session.max_entries must be >= 2 (one question and one answer)")
	}
	if s.Persist && s.DBPath == "" {
		ve.Add("session.db_path is required when persist is true")
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is not a valid host:port", cfg.Metrics.Addr)
	}
}
