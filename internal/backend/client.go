// Package backend is the HTTP client for the ApplyAI backend service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultUserAgent = "applyai-client/1.0"
	maxErrorBody     = 4096
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its transport is used as-is.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to the backend. It implements ports.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

var _ ports.Backend = (*Client)(nil)

// NewClient creates a backend client for baseURL. The URL is not validated;
// a malformed value fails on the first request as a transport error.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// chatResponse accepts both field names the backend has used for the reply.
type chatResponse struct {
	Reply    *string `json:"reply"`
	Response *string `json:"response"`
}

// Chat posts a chat message and returns the reply text.
func (c *Client) Chat(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	message, _ := req.Field(domain.FieldMessage)
	userID, _ := req.Field(domain.FieldUserID)

	body, err := json.Marshal(chatRequest{Message: message, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	switch {
	case result.Reply != nil && *result.Reply != "":
		return *result.Reply, nil
	case result.Response != nil:
		return *result.Response, nil
	case result.Reply != nil:
		return *result.Reply, nil
	default:
		return "", fmt.Errorf("%w: missing reply field", domain.ErrMalformedResponse)
	}
}

type tailorResponse struct {
	TailoredResume *string `json:"tailored_resume"`
}

// TailorResume posts the resume and job description as multipart form data
// and returns the tailored resume text exactly as received.
func (c *Client) TailorResume(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, name := range []string{domain.FieldBaseResume, domain.FieldJobDescription, domain.FieldResumeUserID} {
		value, ok := req.Field(name)
		if !ok {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/resumes", &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	var result tailorResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if result.TailoredResume == nil {
		return "", fmt.Errorf("%w: missing tailored_resume field", domain.ErrMalformedResponse)
	}
	return *result.TailoredResume, nil
}

// ListChats returns the stored chats of userID, newest first.
func (c *Client) ListChats(ctx context.Context, userID string) ([]domain.ChatHistory, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(userID), nil, "")
	if err != nil {
		return nil, err
	}

	var result []domain.ChatHistory
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	for i := range result {
		for j := range result[i].Messages {
			result[i].Messages[j].Role = normalizeRole(result[i].Messages[j].Role)
		}
	}
	return result, nil
}

// ListResumes returns the stored resume tailorings of userID, newest first.
func (c *Client) ListResumes(ctx context.Context, userID string) ([]domain.ResumeHistory, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/resumes/"+url.PathEscape(userID), nil, "")
	if err != nil {
		return nil, err
	}

	var result []domain.ResumeHistory
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return result, nil
}

// normalizeRole maps the backend's stored "ai" role onto RoleAssistant.
func normalizeRole(role domain.Role) domain.Role {
	if role == "ai" {
		return domain.RoleAssistant
	}
	return role
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.NewString()
	c.setHeaders(httpReq, contentType, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("backend request failed",
			slog.String("request_id", requestID),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("backend request completed",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewAPIError(resp.StatusCode, resp.Status, parseErrorDetail(respBody))
	}

	return respBody, nil
}

func (c *Client) setHeaders(req *http.Request, contentType, requestID string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
}

// errorResponse is the backend's error body: {"detail": "..."}.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

func parseErrorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(parsed.Detail, &detail); err == nil {
			return detail
		}
		return string(parsed.Detail)
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "<") {
		// HTML error pages are noise in a status message
		return ""
	}
	return text
}

// IsTransportError reports whether err is a failure to reach the backend.
func IsTransportError(err error) bool {
	var transportErr *domain.TransportError
	return errors.As(err, &transportErr)
}
