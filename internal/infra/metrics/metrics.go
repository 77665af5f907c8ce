// Package metrics exposes Prometheus collectors fed from pipeline events.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"askbox/internal/domain"
	"askbox/internal/infra/middleware"
)

const namespace = "askbox"

// Stream outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Collector holds the askbox collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	streams         *prometheus.CounterVec
	streamErrors    *prometheus.CounterVec
	deltas          prometheus.Counter
	renders         prometheus.Counter
	rendersDropped  prometheus.Counter
	rendersReplaced prometheus.Counter
	translations    *prometheus.CounterVec
	recorded        prometheus.Counter
	duration        prometheus.Histogram
}

// New creates a Collector with Go runtime and process collectors included.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Answer streams by outcome.",
		}, []string{"outcome"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Failed answer streams by error code.",
		}, []string{"code"}),
		deltas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_deltas_total",
			Help:      "Delta events applied to answers.",
		}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Display renders performed.",
		}),
		rendersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_dropped_total",
			Help:      "Interim render requests dropped by the throttle.",
		}),
		rendersReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_superseded_total",
			Help:      "Stashed render requests overwritten by a newer one.",
		}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translations by outcome.",
		}, []string{"outcome"}),
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_records_total",
			Help:      "Question/answer pairs recorded in the history.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Time from stream start to the final render.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	c.registry.MustRegister(
		c.streams, c.streamErrors, c.deltas,
		c.renders, c.rendersDropped, c.rendersReplaced,
		c.translations, c.recorded, c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Subscribe feeds the collector from bus and returns an unsubscribe function.
func (c *Collector) Subscribe(bus domain.EventBus) func() {
	return bus.SubscribeAll(c.handle)
}

func (c *Collector) handle(_ context.Context, e domain.Event) {
	switch e.Type {
	case domain.EventStreamDelta:
		c.deltas.Inc()
	case domain.EventStreamCompleted:
		p, err := domain.DecodePayload[domain.StreamCompletedPayload](e)
		if err != nil {
			c.logger.Debug("metrics: bad payload", "event", string(e.Type), "error", err)
			return
		}
		c.streams.WithLabelValues(OutcomeCompleted).Inc()
		c.renders.Add(float64(p.Renders))
		c.rendersDropped.Add(float64(p.Dropped))
		c.rendersReplaced.Add(float64(p.Superseded))
		c.duration.Observe((time.Duration(p.DurationMS) * time.Millisecond).Seconds())
	case domain.EventStreamCancelled:
		c.streams.WithLabelValues(OutcomeCancelled).Inc()
	case domain.EventStreamError:
		c.streams.WithLabelValues(OutcomeError).Inc()
		code := string(domain.CodeUnknown)
		if p, err := domain.DecodePayload[domain.StreamErrorPayload](e); err == nil && p.Code != "" {
			code = p.Code
		}
		c.streamErrors.WithLabelValues(code).Inc()
	case domain.EventTranslationCompleted:
		c.translations.WithLabelValues("translated").Inc()
	case domain.EventTranslationFailed:
		c.translations.WithLabelValues("fallback").Inc()
	case domain.EventSessionRecorded:
		c.recorded.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format, behind
// read-only, header and rate-limit middleware.
func (c *Collector) Handler(ctx context.Context) http.Handler {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry:          c.registry,
		EnableOpenMetrics: true,
	})
	return middleware.Chain(h,
		middleware.ReadOnly,
		middleware.SecureHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{RequestsPerMin: 120, BurstSize: 20}),
	)
}

// Serve listens on addr and serves /metrics until ctx ends. The returned
// channel receives the server's terminal error (nil on clean shutdown) once.
func (c *Collector) Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler(ctx))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	c.logger.Info("metrics listening", "addr", ln.Addr().String())
	return ln.Addr(), done, nil
}
