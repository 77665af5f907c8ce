package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askbox/internal/domain"
	"askbox/internal/infra/config"
	"askbox/internal/infra/logger"
)

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:    "chatcmpl-1",
		Model: "test-model",
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	})
}

func TestTranslatorTranslate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "  Bonjour le monde\n")
	}))
	defer srv.Close()

	tr := NewTranslator(testProvider(srv.URL), config.TranslationConfig{Model: "translate-model"}, logger.Discard())
	out, err := tr.Translate(context.Background(), "Hello world", "French")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde", out)

	assert.False(t, got.Stream)
	assert.Equal(t, "translate-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.RoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "French")
	assert.Equal(t, chatMessage{Role: domain.RoleUser, Content: "Hello world"}, got.Messages[1])
	require.NotNil(t, got.Temperature)
	assert.Zero(t, *got.Temperature)
}

func TestTranslatorDefaultsToProviderModel(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		chatReply(w, "ok")
	}))
	defer srv.Close()

	tr := NewTranslator(testProvider(srv.URL), config.TranslationConfig{}, logger.Discard())
	_, err := tr.Translate(context.Background(), "x", "German")
	require.NoError(t, err)
	assert.Equal(t, "test-model", model)
}

func TestTranslatorErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: domain.ErrProviderError,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, `{"choices":[]}`)
			},
			want: domain.ErrProviderError,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, `not json`)
			},
			want: domain.ErrProviderError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			tr := NewTranslator(testProvider(srv.URL), config.TranslationConfig{}, logger.Discard())
			_, err := tr.Translate(context.Background(), "x", "French")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "Translator.Translate")
		})
	}
}

func TestTranslatorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewTranslator(testProvider(srv.URL), config.TranslationConfig{Timeout: 50 * time.Millisecond}, logger.Discard())
	start := time.Now()
	_, err := tr.Translate(context.Background(), "x", "French")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTranslatorEmptyReplyIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chatReply(w, "   ")
	}))
	defer srv.Close()

	tr := NewTranslator(testProvider(srv.URL), config.TranslationConfig{}, logger.Discard())
	out, err := tr.Translate(context.Background(), "x", "French")
	require.NoError(t, err)
	assert.Empty(t, out, "an empty translation is left to the caller to reject")
}
