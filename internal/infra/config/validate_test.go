package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Logger.Level = "verbose" }, "logger.level"},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"exporter", func(c *Config) { c.Tracer.Exporter = "jaeger" }, "tracer.exporter"},
		{"base url empty", func(c *Config) { c.Provider.BaseURL = "" }, "provider.base_url must not be empty"},
		{"base url relative", func(c *Config) { c.Provider.BaseURL = "/v1" }, "not an absolute URL"},
		{"model", func(c *Config) { c.Provider.Model = "" }, "provider.model must not be empty"},
		{"encrypted key", func(c *Config) { c.Provider.APIKey = "enc:00:11" }, "ASKBOX_CONFIG_KEY"},
		{"min interval", func(c *Config) { c.Stream.MinRenderInterval = 0 }, "stream.min_render_interval"},
		{"deferred delay", func(c *Config) { c.Stream.DeferredRenderDelay = -time.Millisecond }, "stream.deferred_render_delay"},
		{"replay step", func(c *Config) { c.Stream.ReplayStep = -1 }, "stream.replay_step"},
		{"replay tick", func(c *Config) { c.Stream.ReplayTick = 0 }, "stream.replay_tick"},
		{"read buffer", func(c *Config) { c.Stream.ReadBufferSize = 0 }, "stream.read_buffer_size"},
		{"target tag", func(c *Config) { c.Translation.TargetLanguage = "??" }, "translation.target_language"},
		{"source tag", func(c *Config) { c.Translation.SourceLanguage = "en_US!" }, "translation.source_language"},
		{"translation timeout", func(c *Config) { c.Translation.Timeout = 0 }, "translation.timeout"},
		{"session key", func(c *Config) { c.Session.Key = "" }, "session.key"},
		{"max entries", func(c *Config) { c.Session.MaxEntries = 1 }, "session.max_entries"},
		{"db path", func(c *Config) { c.Session.DBPath = "" }, "session.db_path"},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "9464" }, "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.Model = ""
	cfg.Session.Key = ""

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateAcceptsRegionalTags(t *testing.T) {
	for _, tag := range []string{"fr", "zh-CN", "zh-Hant-TW", "pt-BR"} {
		cfg := Defaults()
		cfg.Translation.TargetLanguage = tag
		if err := Validate(cfg); err != nil {
			t.Errorf("tag %q should be valid: %v", tag, err)
		}
	}
}

func TestValidateReplayTickIgnoredWhenInstant(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.ReplayStep = 0
	cfg.Stream.ReplayTick = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("instant replay should not need a tick: %v", err)
	}
}

func TestValidateSessionWithoutPersistence(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Persist = false
	cfg.Session.DBPath = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("in-memory session should not need a db path: %v", err)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("first error")
	ve.Add("second error")

	msg := ve.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected prefix: %s", msg)
	}
	if !strings.Contains(msg, "first error") || !strings.Contains(msg, "second error") {
		t.Errorf("missing error details: %s", msg)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
