package llm

// Content part types understood by multimodal chat-completions endpoints.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// Message represents a single outgoing message in a conversation.
type Message struct {
	Role    string        `json:"role"`    // "user", "assistant"
	Content []ContentPart `json:"content"` // Ordered text and image parts
}

// ContentPart is one element of a multimodal message content list.
type ContentPart struct {
	Type     string    `json:"type"`                // "text" or "image_url"
	Text     string    `json:"text,omitempty"`      // Set for text parts
	ImageURL *ImageURL `json:"image_url,omitempty"` // Set for image parts
}

// ImageURL carries an image reference, usually an inline data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image content part pointing at url.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}
