package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askbox/internal/domain"
	"askbox/internal/infra/logger"
	"askbox/internal/usecase/eventbus"
)

func publishAll(t *testing.T, c *Collector, events ...domain.Event) {
	t.Helper()
	bus := eventbus.New(logger.Discard())
	unsubscribe := c.Subscribe(bus)
	defer unsubscribe()
	for _, e := range events {
		bus.Publish(context.Background(), e)
	}
	bus.Close()
}

func TestCollectorCountsCompletedStream(t *testing.T) {
	c := New(logger.Discard())
	publishAll(t, c,
		domain.NewEvent(domain.EventStreamDelta, "", domain.StreamDeltaPayload{Content: "a"}),
		domain.NewEvent(domain.EventStreamDelta, "", domain.StreamDeltaPayload{Content: "b"}),
		domain.NewEvent(domain.EventStreamCompleted, "", domain.StreamCompletedPayload{
			RequestID:  "r1",
			DurationMS: 1500,
			Renders:    4,
			Dropped:    7,
			Superseded: 2,
		}),
		domain.NewEvent(domain.EventSessionRecorded, "", nil),
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.deltas))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streams.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.renders))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.rendersDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rendersReplaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recorded))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollectorCountsFailures(t *testing.T) {
	c := New(logger.Discard())
	publishAll(t, c,
		domain.NewEvent(domain.EventStreamError, "", domain.StreamErrorPayload{Code: string(domain.CodeServerReported)}),
		domain.NewEvent(domain.EventStreamError, "", nil),
		domain.NewEvent(domain.EventStreamCancelled, "", domain.StreamErrorPayload{RequestID: "r"}),
		domain.NewEvent(domain.EventTranslationFailed, "", domain.TranslationPayload{Target: "French"}),
		domain.NewEvent(domain.EventTranslationCompleted, "", domain.TranslationPayload{Target: "French"}),
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.streams.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streams.WithLabelValues(OutcomeCancelled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streamErrors.WithLabelValues(string(domain.CodeServerReported))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.streamErrors.WithLabelValues(string(domain.CodeUnknown))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.translations.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.translations.WithLabelValues("translated")))
}

func TestCollectorIgnoresBadPayload(t *testing.T) {
	c := New(logger.Discard())
	publishAll(t, c, domain.Event{Type: domain.EventStreamCompleted, Payload: []byte(`{"renders":"many"}`)})

	assert.Zero(t, testutil.ToFloat64(c.streams.WithLabelValues(OutcomeCompleted)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(logger.Discard())
	c.renders.Add(3)

	w := httptest.NewRecorder()
	c.Handler(ctx).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "askbox_renders_total 3")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	c.Handler(ctx).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(logger.Discard())

	addr, done, err := c.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "askbox_streams_total") || strings.Contains(string(body), "go_goroutines"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeBadAddr(t *testing.T) {
	c := New(logger.Discard())
	_, _, err := c.Serve(context.Background(), "not-an-addr")
	assert.Error(t, err)
}
