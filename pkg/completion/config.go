package completion

import "time"

const (
	// DefaultBaseURL is the OpenRouter OpenAI-compatible API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the multimodal model requests are sent to.
	DefaultModel = "google/gemma-3-27b-it:free"

	DefaultReferer = "http://localhost:8501"
	DefaultTitle   = "lenschat"
)

// Config is the completion client configuration. The API key is always
// passed in explicitly; nothing here reads the environment.
type Config struct {
	// APIKey is sent as a bearer token.
	APIKey string

	// BaseURL of the chat-completions API, without the "/chat/completions" suffix.
	BaseURL string

	// Model identifier sent with every request.
	Model string

	// Referer and Title populate the informational HTTP-Referer and X-Title headers.
	Referer string
	Title   string

	// Timeout bounds a single HTTP exchange. Zero means no timeout beyond the caller's context.
	Timeout time.Duration

	// MaxImageDimension caps the longest image side before encoding. Zero keeps the original size.
	MaxImageDimension int

	// MaxImagePixels rejects images declaring more pixels. Zero uses imaging.DefaultMaxPixels.
	MaxImagePixels int
}

// withDefaults fills empty fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Referer == "" {
		c.Referer = DefaultReferer
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	return c
}
