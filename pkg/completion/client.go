// Package completion sends one multimodal user turn to a chat-completions
// endpoint and classifies the outcome as a tagged Result.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/imaging"
	"github.com/papercomputeco/lenschat/pkg/llm"
)

// Transport names accepted by NewTransport.
const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// Client builds requests from user input and extracts the assistant reply.
// It holds no per-session state.
type Client struct {
	config    Config
	transport Transport
	logger    *zap.Logger
}

// NewClient creates a Client sending through transport.
func NewClient(config Config, transport Transport, logger *zap.Logger) *Client {
	return &Client{
		config:    config.withDefaults(),
		transport: transport,
		logger:    logger,
	}
}

// NewTransport builds the named transport from config.
func NewTransport(name string, config Config, logger *zap.Logger) (Transport, error) {
	switch strings.ToLower(name) {
	case "", TransportREST:
		return NewRESTTransport(config, nil, logger), nil
	case TransportSDK:
		return NewSDKTransport(config, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", name, TransportREST, TransportSDK)
	}
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string {
	return c.config.Model
}

// GetReply sends text and an optional image as a single user message and
// returns the classified outcome. It never returns a Go error: every failure
// is folded into the Result so the caller can always render something.
func (c *Client) GetReply(ctx context.Context, text string, image []byte) Result {
	text = strings.TrimSpace(text)
	if text == "" && len(image) == 0 {
		return Result{Kind: KindEmptyInput}
	}

	var imageURL string
	if len(image) > 0 {
		png, err := imaging.Normalize(image, imaging.Limits{
			MaxDimension: c.config.MaxImageDimension,
			MaxPixels:    c.config.MaxImagePixels,
		})
		if err != nil {
			c.logger.Warn("rejecting image", zap.Error(err))
			return Result{Kind: KindInvalidImage, Detail: err.Error()}
		}
		imageURL = imaging.DataURI(png)
	}

	req := llm.NewUserRequest(c.config.Model, text, imageURL)
	startTime := time.Now()

	resp, err := c.transport.Complete(ctx, req)
	if err != nil {
		var malformed *MalformedBodyError
		if errors.As(err, &malformed) {
			c.logger.Error("completion response unparseable",
				zap.Int("status", malformed.StatusCode),
				zap.Error(err),
			)
			return Result{Kind: KindMalformedResponse, Detail: malformed.Error()}
		}

		c.logger.Error("completion request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)),
		)
		return Result{Kind: KindTransportFailure, Detail: err.Error()}
	}

	reply, ok := resp.Reply()
	if !ok {
		detail := resp.ErrorText()
		c.logger.Warn("completion response has no choices",
			zap.String("provider_error", llm.Preview(detail, 200)),
		)
		return Result{Kind: KindMalformedResponse, Detail: detail}
	}

	c.logger.Debug("completion reply received",
		zap.String("model", resp.Model),
		zap.String("content_preview", llm.Preview(reply, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return Result{Kind: KindOK, Text: reply}
}
