// Package api is the HTTP client for the Blario support backend: issue
// submission, chat-triage prefill, and the signed-URL attachment flow. It is
// independent of the WebSocket chat client — no live connection needed.
//
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff up to a bounded attempt count; this is a plain request/response
// retry, separate from the chat client's reconnection policy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// Config holds parameters for the HTTP client.
type Config struct {
	BaseURL        string // e.g. "https://api.blar.io"
	PublishableKey string
	MaxRetries     int
	RetryDelay     time.Duration // base backoff; retry n waits RetryDelay * 2^n
	Timeout        time.Duration // per-attempt timeout
	Headers        http.Header   // extra headers on every request
}

// Error is a failed backend response.
type Error struct {
	Status  int // HTTP status, 0 for transport-level failures
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Client talks to the Blario REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates an API client. Zero Config fields get defaults.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if cfg.PublishableKey == "" {
		return nil, fmt.Errorf("api: PublishableKey is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// SubmitIssue reports an issue and returns its ID.
func (c *Client) SubmitIssue(ctx context.Context, report IssueReport) (string, error) {
	if report.Form.Summary == "" {
		return "", &Error{Status: http.StatusBadRequest, Message: "summary is required"}
	}
	if report.PublishableKey == "" {
		report.PublishableKey = c.cfg.PublishableKey
	}

	var resp struct {
		IssueID string `json:"issueId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/support/issue", report, &resp); err != nil {
		return "", err
	}
	if resp.IssueID == "" {
		return "", &Error{Message: "invalid response: missing issueId"}
	}
	return resp.IssueID, nil
}

// GenerateIssuePrefill asks the backend to triage a chat transcript into a
// suggested issue form.
func (c *Client) GenerateIssuePrefill(ctx context.Context, messages []ChatHistoryMessage) (*TriageResponse, error) {
	if len(messages) == 0 {
		return nil, &Error{Status: http.StatusBadRequest, Message: "chat history is empty"}
	}

	req := struct {
		Messages []ChatHistoryMessage `json:"messages"`
	}{Messages: messages}

	var resp TriageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/support/triage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PrepareUploads requests signed upload slots for the given files. issueID
// may be empty when uploading before the issue exists.
func (c *Client) PrepareUploads(ctx context.Context, files []FileMetadata, issueID string) ([]UploadSlot, error) {
	req := struct {
		Files   []FileMetadata `json:"files"`
		IssueID string         `json:"issue_id,omitempty"`
	}{Files: files, IssueID: issueID}

	var resp struct {
		Uploads []UploadSlot `json:"uploads"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/support/attachments/prepare", req, &resp); err != nil {
		return nil, err
	}
	return resp.Uploads, nil
}

// Upload PUTs file content to a prepared slot's signed URL and returns the
// slot's upload token on success. Authorization failures are not retried.
func (c *Client) Upload(ctx context.Context, slot UploadSlot, content []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.UploadURL, bytes.NewReader(content))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", contentType)
		if slot.MaxSize > 0 {
			req.Header.Set("x-goog-content-length-range", fmt.Sprintf("0,%d", slot.MaxSize))
		}
		for k, v := range slot.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return slot.UploadToken, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", &Error{Status: resp.StatusCode, Message: "upload authorization failed"}
		default:
			lastErr = &Error{Status: resp.StatusCode, Message: "upload failed"}
		}
	}
	return "", fmt.Errorf("upload %s: %w", slot.GCSPath, lastErr)
}

// VerifyAttachments confirms uploaded files against an issue.
func (c *Client) VerifyAttachments(ctx context.Context, issueID string, uploadTokens []string) ([]VerifiedAttachment, error) {
	req := struct {
		IssueID      string   `json:"issue_id"`
		UploadTokens []string `json:"upload_tokens"`
	}{IssueID: issueID, UploadTokens: uploadTokens}

	var resp struct {
		Success     bool                 `json:"success"`
		Attachments []VerifiedAttachment `json:"attachments"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/support/attachments/verify", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Message: "attachment verification rejected"}
	}
	return resp.Attachments, nil
}

// doJSON sends one JSON request with retries and decodes the response into
// dest. Only transient failures are retried: network errors, 5xx, and 429.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, dest any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("api: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Publishable-Key", c.cfg.PublishableKey)
		for k, vs := range c.cfg.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if dest == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, dest); err != nil {
				return fmt.Errorf("api: decode response: %w", err)
			}
			return nil
		}

		apiErr := &Error{Status: resp.StatusCode, Message: errorMessage(respBody, resp.Status)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return fmt.Errorf("api: %s %s: %w", method, path, lastErr)
}

func (c *Client) backoff(retry int) time.Duration {
	return c.cfg.RetryDelay * (1 << retry)
}

// errorMessage pulls a "message" out of an error response body, falling back
// to the HTTP status line.
func errorMessage(body []byte, status string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return status
}
