package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"askbox/internal/domain"
	"askbox/internal/infra/config"
	"askbox/internal/infra/tracer"
)

const defaultTranslationTimeout = 30 * time.Second

const translationPrompt = "You are a translator. Translate the user's message into %s. " +
	"Keep markdown, code blocks and line breaks intact. Reply with the translation only."

// Translator implements domain.Translator with one non-streaming chat
// completion per call.
type Translator struct {
	name    string
	url     string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

var _ domain.Translator = (*Translator)(nil)

// NewTranslator creates a translator using the provider endpoint. The
// translation model defaults to the provider model.
func NewTranslator(cfg config.ProviderConfig, tcfg config.TranslationConfig, logger *slog.Logger, opts ...Option) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	o := applyOptions(cfg, opts)
	model := tcfg.Model
	if model == "" {
		model = cfg.Model
	}
	timeout := tcfg.Timeout
	if timeout <= 0 {
		timeout = defaultTranslationTimeout
	}
	name := cfg.Name
	if name == "" {
		name = "provider"
	}
	return &Translator{
		name:    name,
		url:     endpoint(cfg.BaseURL),
		model:   model,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  o.client,
		breaker: newBreaker[string]("translate:"+name, cfg.CircuitBreaker, logger),
		logger:  logger,
	}
}

// Translate returns text translated into targetLanguageName ("French").
func (t *Translator) Translate(ctx context.Context, text, targetLanguageName string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "askbox.translate",
		trace.WithAttributes(
			tracer.StringAttr("llm.model", t.model),
			tracer.StringAttr("askbox.target_language", targetLanguageName),
			tracer.IntAttr("askbox.source_chars", len(text)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	zero := 0.0
	body, err := json.Marshal(chatRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(translationPrompt, targetLanguageName)},
			{Role: domain.RoleUser, Content: text},
		},
		Temperature: &zero,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	out, err := t.breaker.Execute(func() (string, error) {
		respBody, err := doJSONRequest(ctx, t.client, t.url, body, authHeaders(t.apiKey))
		if err != nil {
			return "", err
		}
		return parseTranslation(respBody)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: after %s: %w", domain.ErrTimeout, t.timeout, err)
		}
		err = breakerError(t.name, err)
		tracer.RecordError(span, err)
		return "", domain.WrapOp("Translator.Translate", err)
	}

	span.SetAttributes(tracer.IntAttr("askbox.translated_chars", len(out)))
	tracer.SetOK(span)
	t.logger.Debug("translation completed",
		"target", targetLanguageName,
		"chars", len(out),
		"elapsed", time.Since(start),
	)
	return out, nil
}

func parseTranslation(respBody []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %w", domain.ErrProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrProviderError)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
