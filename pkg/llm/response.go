package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChatResponse represents a chat completion response (OpenAI-compatible).
// Error is kept raw because providers send either a string or an object.
type ChatResponse struct {
	ID      string          `json:"id,omitempty"`
	Model   string          `json:"model,omitempty"`
	Choices []Choice        `json:"choices,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Choice is a single generated alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage is the assistant message inside a choice. Unlike requests,
// responses carry plain string content.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting when the provider includes it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply returns the content of the first choice and whether one exists.
func (r *ChatResponse) Reply() (string, bool) {
	if r == nil || len(r.Choices) == 0 {
		return "", false
	}
	return r.Choices[0].Message.Content, true
}

// HasError reports whether the response carried a non-null error payload.
func (r *ChatResponse) HasError() bool {
	if r == nil {
		return false
	}
	raw := bytes.TrimSpace(r.Error)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// ErrorText renders the provider error payload verbatim: string payloads are
// unquoted, anything else is returned as compact JSON.
func (r *ChatResponse) ErrorText() string {
	if !r.HasError() {
		return ""
	}

	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Error); err != nil {
		return strings.TrimSpace(string(r.Error))
	}
	return buf.String()
}
