package llm

// ChatRequest represents a chat completion request (OpenAI-compatible).
type ChatRequest struct {
	Model    string    `json:"model"`    // Model identifier (e.g., "google/gemma-3-27b-it:free")
	Messages []Message `json:"messages"` // Conversation sent to the model
}

// NewUserRequest builds a single-message request from the user's text and an
// optional image URL. Empty values are left out of the content list, so the
// message may carry text only, an image only, or both.
func NewUserRequest(model, text, imageURL string) *ChatRequest {
	msg := Message{Role: "user", Content: []ContentPart{}}
	if text != "" {
		msg.Content = append(msg.Content, TextPart(text))
	}
	if imageURL != "" {
		msg.Content = append(msg.Content, ImagePart(imageURL))
	}

	return &ChatRequest{
		Model:    model,
		Messages: []Message{msg},
	}
}
