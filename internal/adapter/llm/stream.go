package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"askbox/internal/domain"
	"askbox/internal/infra/config"
	"askbox/internal/infra/tracer"
)

// Option customizes a StreamClient or Translator.
type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient shares an existing client instead of building a pooled one.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func applyOptions(cfg config.ProviderConfig, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = NewHTTPClient(cfg)
	}
	return o
}

// StreamClient opens streamed chat completions against an OpenAI-compatible
// endpoint. Only opening the stream goes through the circuit breaker; the
// body is read by the caller.
type StreamClient struct {
	name         string
	url          string
	model        string
	apiKey       string
	systemPrompt string
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	logger       *slog.Logger
}

// NewStreamClient creates a client from the provider section of the config.
func NewStreamClient(cfg config.ProviderConfig, logger *slog.Logger, opts ...Option) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	o := applyOptions(cfg, opts)
	name := cfg.Name
	if name == "" {
		name = "provider"
	}
	return &StreamClient{
		name:         name,
		url:          endpoint(cfg.BaseURL),
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		client:       o.client,
		breaker:      newBreaker[*http.Response]("stream:"+name, cfg.CircuitBreaker, logger),
		logger:       logger,
	}
}

// Open posts question with the prior history and returns the response body
// of the event stream. The caller must close it.
func (c *StreamClient) Open(ctx context.Context, question string, history []domain.ConversationTurn) (io.ReadCloser, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.NewDomainError("StreamClient.Open", domain.ErrInvalidInput, "empty question")
	}

	ctx, span := tracer.StartSpan(ctx, "askbox.stream.open",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", c.name),
			tracer.StringAttr("llm.model", c.model),
			tracer.IntAttr("askbox.history_turns", len(history)),
		),
	)
	defer span.End()

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: buildMessages(c.systemPrompt, history, question),
		Stream:   true,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return doStreamRequest(ctx, c.client, c.url, body, authHeaders(c.apiKey))
	})
	if err != nil {
		err = breakerError(c.name, err)
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("StreamClient.Open", err)
	}

	tracer.SetOK(span)
	c.logger.Debug("stream opened", "provider", c.name, "model", c.model, "history", len(history))
	return resp.Body, nil
}

// State returns the circuit breaker state for monitoring.
func (c *StreamClient) State() gobreaker.State { return c.breaker.State() }
