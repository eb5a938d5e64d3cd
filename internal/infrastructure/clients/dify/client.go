package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	"github.com/zatekoja/attendance-relay/pkg/config"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

const (
	defaultBaseURL = "https://api.dify.ai/v1"
	backendName    = "dify"
)

// Client implements providers.ChatProvider against the chat-messages endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

var _ providers.ChatProvider = (*Client)(nil)

// NewClient creates a new chat client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewClient(cfg *config.DifyConfig, metrics *observability.Metrics) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("dify config is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		metrics: metrics,
	}, nil
}

// SendMessage posts a blocking chat message and decodes the answer.
func (c *Client) SendMessage(ctx context.Context, chatReq *entities.ChatRequest) (*entities.ChatReply, error) {
	if chatReq == nil {
		return nil, apperrors.NewValidationError("chat request is required")
	}

	payload := *chatReq
	if payload.ResponseMode == "" {
		payload.ResponseMode = entities.ResponseModeBlocking
	}
	if payload.Inputs == nil {
		payload.Inputs = map[string]interface{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create chat request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordUpstreamMetric(ctx, c.metrics, backendName, 0, time.Since(start))
		return nil, apperrors.NewInternalError("dify request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	observability.RecordUpstreamMetric(ctx, c.metrics, backendName, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read dify response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewUpstreamError("Dify API error", resp.StatusCode, respBody)
	}

	var reply entities.ChatReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("invalid dify response (status %d)", resp.StatusCode), err)
	}

	return &reply, nil
}
