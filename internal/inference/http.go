package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/logging"
)

// Mode selects how the HTTP client hands the image to the service.
type Mode string

const (
	// ModeURL posts {"image_url": locator} and lets the service fetch the blob.
	ModeURL Mode = "url"
	// ModeUpload posts the raw bytes as multipart field "file".
	ModeUpload Mode = "upload"
)

const maxResponseBytes = 32 << 20

// HTTPClient calls the analysis service's POST /predict endpoint.
type HTTPClient struct {
	endpoint string
	mode     Mode
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClient builds a client for baseURL. timeout bounds every call on
// top of the caller's context.
func NewHTTPClient(baseURL string, mode Mode, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/predict",
		mode:     mode,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("inference_http"),
	}
}

func (c *HTTPClient) Infer(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, logging.NewOperationError("inference.http_build_request", req.DetectionID, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError("inference.http_predict", req.DetectionID, err)
		c.logger.Error("analysis call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, logging.NewOperationError("inference.http_read_body", req.DetectionID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		wrapped := logging.NewOperationError("inference.http_predict", req.DetectionID,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256)))
		c.logger.Error("analysis service rejected request", zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	result, err := decodeResult(body)
	if err != nil {
		wrapped := logging.NewOperationError("inference.http_decode", req.DetectionID, err)
		c.logger.Error("analysis payload rejected", zap.Error(wrapped))
		return nil, wrapped
	}
	return result, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	if c.mode == ModeUpload {
		body, contentType, err := multipartBody(req)
		if err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentType)
		return httpReq, nil
	}

	raw, err := json.Marshal(map[string]string{
		"image_url": req.Locator,
		"filename":  req.Filename,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func multipartBody(req Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("image_url", req.Locator); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
