// Package llm provides the wire representations of chat-completions requests
// and responses exchanged with an OpenAI-compatible endpoint such as OpenRouter.
package llm

// ErrorResponse is the error body returned by the lenschat HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
