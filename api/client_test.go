package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:        baseURL,
		PublishableKey: "pk_test",
		RetryDelay:     time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{PublishableKey: "pk"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://api.blar.io"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://api.blar.io/", PublishableKey: "pk"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.blar.io", c.cfg.BaseURL)
	assert.Equal(t, DefaultMaxRetries, c.cfg.MaxRetries)
}

func TestSubmitIssue(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/support/issue", r.URL.Path)
		gotKey = r.Header.Get("X-Publishable-Key")

		var report IssueReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		assert.Equal(t, "pk_test", report.PublishableKey, "client fills missing key")

		json.NewEncoder(w).Encode(map[string]string{"issueId": "iss_123"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	id, err := c.SubmitIssue(context.Background(), IssueReport{
		Form: FormData{Summary: "widget crashes on load"},
	})
	require.NoError(t, err)
	assert.Equal(t, "iss_123", id)
	assert.Equal(t, "pk_test", gotKey)
}

func TestSubmitIssueRequiresSummary(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0")
	_, err := c.SubmitIssue(context.Background(), IssueReport{})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestSubmitIssueRejectsMissingIssueID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.SubmitIssue(context.Background(), IssueReport{Form: FormData{Summary: "s"}})
	assert.ErrorContains(t, err, "missing issueId")
}

func TestRetryOnTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			json.NewEncoder(w).Encode(map[string]string{"issueId": "iss_1"})
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	id, err := c.SubmitIssue(context.Background(), IssueReport{Form: FormData{Summary: "s"}})
	require.NoError(t, err)
	assert.Equal(t, "iss_1", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad publishable key"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.SubmitIssue(context.Background(), IssueReport{Form: FormData{Summary: "s"}})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "bad publishable key", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestRetriesExhaust(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.SubmitIssue(context.Background(), IssueReport{Form: FormData{Summary: "s"}})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, int32(1+DefaultMaxRetries), calls.Load())
}

func TestGenerateIssuePrefill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/support/triage", r.URL.Path)
		json.NewEncoder(w).Encode(TriageResponse{
			FormData: TriageFormData{Summary: "login broken", Description: "user cannot sign in"},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.GenerateIssuePrefill(context.Background(), []ChatHistoryMessage{
		{Role: "user", Content: "I cannot log in"},
	})
	require.NoError(t, err)
	assert.Equal(t, "login broken", resp.FormData.Summary)

	_, err = c.GenerateIssuePrefill(context.Background(), nil)
	assert.Error(t, err, "empty history is rejected locally")
}

func TestUploadFlow(t *testing.T) {
	var uploaded []byte
	uploadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "0,1024", r.Header.Get("x-goog-content-length-range"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploaded = body
		w.WriteHeader(http.StatusOK)
	}))
	defer uploadSrv.Close()

	c := testClient(t, "http://unused.invalid")
	token, err := c.Upload(context.Background(), UploadSlot{
		UploadURL:   uploadSrv.URL,
		UploadToken: "tok_1",
		MaxSize:     1024,
	}, []byte("png bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "tok_1", token)
	assert.Equal(t, []byte("png bytes"), uploaded)
}

func TestUploadAuthFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, "http://unused.invalid")
	_, err := c.Upload(context.Background(), UploadSlot{UploadURL: srv.URL}, nil, "")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, "http://unused.invalid")
	token, err := c.Upload(context.Background(), UploadSlot{
		UploadURL:   srv.URL,
		UploadToken: "tok_2",
	}, []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "tok_2", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVerifyAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/support/attachments/verify", r.URL.Path)
		var req struct {
			IssueID      string   `json:"issue_id"`
			UploadTokens []string `json:"upload_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "iss_9", req.IssueID)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"attachments": []VerifiedAttachment{
				{Name: "shot.png", URL: "https://cdn.blar.io/shot.png"},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	atts, err := c.VerifyAttachments(context.Background(), "iss_9", []string{"tok_1"})
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "shot.png", atts[0].Name)
}

func TestVerifyAttachmentsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.VerifyAttachments(context.Background(), "iss_9", []string{"tok_1"})
	assert.ErrorContains(t, err, "rejected")
}
