package llm

import (
	"strings"

	"askbox/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// --- OpenAI-compatible chat completion wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// buildMessages lays out the system prompt, prior turns in order, then the
// new question. Turns with unknown roles are skipped.
func buildMessages(systemPrompt string, history []domain.ConversationTurn, question string) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, chatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	}
	for _, turn := range history {
		switch turn.Role {
		case domain.RoleUser, domain.RoleAssistant:
			msgs = append(msgs, chatMessage{Role: turn.Role, Content: turn.Content})
		}
	}
	return append(msgs, chatMessage{Role: domain.RoleUser, Content: question})
}

func endpoint(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return baseURL + "/chat/completions"
}
