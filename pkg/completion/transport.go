package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/llm"
)

// Transport sends a chat request to a completions endpoint. A returned error
// means the exchange itself failed; provider-level errors come back inside
// the response.
type Transport interface {
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// MalformedBodyError is returned when the endpoint answered with a body that
// is not a chat-completions JSON document.
type MalformedBodyError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("status %d: unparseable response body: %s", e.StatusCode, e.Body)
}

func (e *MalformedBodyError) Unwrap() error {
	return e.Err
}

// RESTTransport posts JSON to <BaseURL>/chat/completions with net/http.
type RESTTransport struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRESTTransport creates a RESTTransport. A nil httpClient uses a client
// bounded by config.Timeout.
func NewRESTTransport(config Config, httpClient *http.Client, logger *zap.Logger) *RESTTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &RESTTransport{
		config:     config.withDefaults(),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Complete issues one POST. Non-2xx statuses are not treated as failures:
// the body is decoded and its error payload surfaces to the caller.
func (t *RESTTransport) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(t.config.BaseURL, "/") + "/chat/completions"
	t.logger.Debug("posting completion request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	t.setHeaders(httpReq)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	t.logger.Debug("completion response received",
		zap.Int("status", httpResp.StatusCode),
		zap.Int("body_size", len(body)),
	)

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedBodyError{
			StatusCode: httpResp.StatusCode,
			Body:       llm.Preview(string(body), 200),
			Err:        err,
		}
	}

	return &resp, nil
}

func (t *RESTTransport) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", t.config.Referer)
	req.Header.Set("X-Title", t.config.Title)
}
