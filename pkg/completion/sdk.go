package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/llm"
)

// SDKTransport sends requests through the openai-go client pointed at an
// OpenAI-compatible base URL.
type SDKTransport struct {
	client openai.Client
	logger *zap.Logger
}

// NewSDKTransport creates an SDKTransport. Retries are disabled; one
// submission is one HTTP exchange.
func NewSDKTransport(config Config, logger *zap.Logger, extra ...option.RequestOption) *SDKTransport {
	config = config.withDefaults()

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithHeader("HTTP-Referer", config.Referer),
		option.WithHeader("X-Title", config.Title),
		option.WithMaxRetries(0),
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	opts = append(opts, extra...)

	return &SDKTransport{
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Complete maps the request onto the SDK params and the SDK completion back
// onto llm.ChatResponse. API errors become a response error payload so they
// are reported like a REST error body. A 2xx body without choices is decoded
// from the raw JSON so a provider error field survives.
func (t *SDKTransport) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toSDKMessages(req.Messages),
	}

	t.logger.Debug("sending completion via sdk",
		zap.String("model", req.Model),
		zap.Int("message_count", len(params.Messages)),
	)

	completion, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return &llm.ChatResponse{Error: sdkErrorPayload(apiErr)}, nil
		}
		return nil, fmt.Errorf("sdk request: %w", err)
	}

	if len(completion.Choices) == 0 {
		return rawResponse(completion)
	}

	resp := &llm.ChatResponse{
		ID:    completion.ID,
		Model: completion.Model,
		Usage: &llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, llm.Choice{
			Index:        int(choice.Index),
			FinishReason: string(choice.FinishReason),
			Message: llm.ResponseMessage{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
		})
	}

	return resp, nil
}

func toSDKMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Type {
			case llm.PartTypeText:
				parts = append(parts, openai.TextContentPart(part.Text))
			case llm.PartTypeImageURL:
				if part.ImageURL != nil {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					}))
				}
			}
		}
		out = append(out, openai.UserMessage(parts))
	}
	return out
}

// rawResponse decodes the body the SDK received, keeping fields such as
// "error" that the SDK completion type has no slot for.
func rawResponse(completion *openai.ChatCompletion) (*llm.ChatResponse, error) {
	raw := completion.RawJSON()
	var resp llm.ChatResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &MalformedBodyError{
			StatusCode: http.StatusOK,
			Body:       llm.Preview(raw, 200),
			Err:        err,
		}
	}
	return &resp, nil
}

func sdkErrorPayload(apiErr *openai.Error) json.RawMessage {
	message := apiErr.Message
	if message == "" {
		message = apiErr.Error()
	}

	payload, err := json.Marshal(map[string]any{
		"message": message,
		"code":    apiErr.StatusCode,
	})
	if err != nil {
		return nil
	}
	return payload
}
