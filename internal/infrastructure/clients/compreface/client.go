package compreface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
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
	recognizePath = "/api/v1/recognition/recognize"
	frameFilename = "frame.jpg"
	backendName   = "compreface"
)

// Client forwards frames to the recognition service using a server-held API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

var _ providers.RecognitionProvider = (*Client)(nil)

// NewClient creates a new recognition client
func NewClient(cfg *config.CompreFaceConfig, metrics *observability.Metrics) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("compreface url is required")
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		metrics: metrics,
	}, nil
}

// Recognize posts the frame as a JPEG part and returns the raw response.
func (c *Client) Recognize(ctx context.Context, frame *entities.Frame) (*entities.RecognitionResult, error) {
	if frame == nil || len(frame.Image) == 0 {
		return nil, apperrors.NewValidationError("file is required")
	}

	body, contentType, err := encodeFrame(frame.Image)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode frame", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recognizeURL(frame), body)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create recognition request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordUpstreamMetric(ctx, c.metrics, backendName, 0, time.Since(start))
		return nil, apperrors.NewInternalError("recognition request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	observability.RecordUpstreamMetric(ctx, c.metrics, backendName, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read recognition response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewUpstreamError("CompreFace API error", resp.StatusCode, respBody).
			WithContentType(resp.Header.Get("Content-Type"))
	}

	return &entities.RecognitionResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

func (c *Client) recognizeURL(frame *entities.Frame) string {
	threshold := frame.DetProbThreshold
	if threshold == "" {
		threshold = entities.DefaultDetProbThreshold
	}
	plugins := frame.FacePlugins
	if plugins == "" {
		plugins = entities.DefaultFacePlugins
	}

	params := url.Values{}
	params.Set("prediction_count", "1")
	params.Set("limit", "0")
	params.Set("det_prob_threshold", threshold)
	params.Set("status", "true")
	params.Set("face_plugins", plugins)

	return fmt.Sprintf("%s%s?%s", c.baseURL, recognizePath, params.Encode())
}

func encodeFrame(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, frameFilename))
	header.Set("Content-Type", "image/jpeg")

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}
