// Package client is a REST client for the OmniCall server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// DefaultEndpoint is used when neither an endpoint nor OMNICALL_SERVER_URL is set.
const DefaultEndpoint = "http://localhost:8585"

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsPaymentRequired reports whether err is a 402 from the server.
func IsPaymentRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusPaymentRequired
}

// Client talks to the server's /api routes.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, OMNICALL_SERVER_URL or
// DefaultEndpoint is used. OMNICALL_CLIENT_TIMEOUT overrides the 10 minute
// timeout that synchronous ingestion of large documents needs.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("OMNICALL_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("OMNICALL_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TYPES (matching the server's JSON)
// =============================================================================

// IngestResult summarizes one stored document.
type IngestResult struct {
	CartridgeID string   `json:"cartridge_id"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title,omitempty"`
	Paragraphs  int      `json:"paragraphs"`
	Stored      int      `json:"stored"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors,omitempty"`
}

// FilesResult summarizes a background ingestion.
type FilesResult struct {
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	ChunksCreated  int      `json:"chunks_created"`
	Errors         []string `json:"errors,omitempty"`
}

// Job is a background ingestion job.
type Job struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	CartridgeID string       `json:"cartridge_id"`
	Files       []string     `json:"files,omitempty"`
	Progress    int          `json:"progress"`
	Total       int          `json:"total"`
	Result      *FilesResult `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// UploadResult is the response of a document upload. Result is set for
// synchronous uploads and Job for asynchronous ones.
type UploadResult struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	Filename    string        `json:"filename"`
	CartridgeID string        `json:"cartridgeId"`
	Result      *IngestResult `json:"result,omitempty"`
	Job         *Job          `json:"job,omitempty"`
}

// RetrieveResult is the context for a query.
type RetrieveResult struct {
	Context string               `json:"context"`
	Chunks  []models.ChunkResult `json:"chunks"`
}

// Balance is a user's credit balance.
type Balance struct {
	UserID    string    `json:"userId"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CallStats aggregates a user's recent calls.
type CallStats struct {
	Total         int            `json:"total"`
	TotalDuration int            `json:"totalDuration"`
	AvgDuration   int            `json:"avgDuration"`
	CreditsUsed   int            `json:"creditsUsed"`
	ByChannel     map[string]int `json:"byChannel"`
}

// Calls is the call history of a user.
type Calls struct {
	Calls []models.Call `json:"calls"`
	Stats CallStats     `json:"stats"`
}

// ChatRequest is one text message.
type ChatRequest struct {
	UserID      string `json:"userId"`
	CartridgeID string `json:"cartridgeId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Message     string `json:"message"`
	Analyze     bool   `json:"analyze,omitempty"`
}

// Intent is the classification returned when ChatRequest.Analyze is set.
type Intent struct {
	Intent    string   `json:"intent"`
	Sentiment string   `json:"sentiment"`
	Urgency   string   `json:"urgency"`
	Entities  []string `json:"entities"`
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	SessionID string  `json:"sessionId"`
	Reply     string  `json:"reply"`
	Intent    *Intent `json:"intent,omitempty"`
	Balance   int     `json:"balance"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Upload sends a document for cartridgeID. With async the server returns a
// job immediately.
func (c *Client) Upload(ctx context.Context, userID, cartridgeID, filename string, content io.Reader, async bool) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{"userId": userID, "cartridgeId": cartridgeID}
	if async {
		fields["async"] = "true"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("copy %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embeddings", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile uploads the file at path.
func (c *Client) UploadFile(ctx context.Context, userID, cartridgeID, path string, async bool) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.Upload(ctx, userID, cartridgeID, filepath.Base(path), f, async)
}

// Retrieve returns the chunks of cartridgeID closest to query.
func (c *Client) Retrieve(ctx context.Context, cartridgeID, query string, limit int) (*RetrieveResult, error) {
	q := url.Values{"cartridgeId": {cartridgeID}, "query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out RetrieveResult
	if err := c.do(ctx, http.MethodGet, "/api/embeddings", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs returns all background jobs.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var out []Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob returns a job, or nil when it does not exist.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var out Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// CREDITS AND CALLS
// =============================================================================

// Balance returns a user's credits.
func (c *Client) Balance(ctx context.Context, userID string) (*Balance, error) {
	var out Balance
	if err := c.do(ctx, http.MethodGet, "/api/credits", url.Values{"userId": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddCredits tops up a balance and returns the new balance.
func (c *Client) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	var out struct {
		NewBalance int `json:"newBalance"`
	}
	body := map[string]any{"userId": userID, "action": "add", "amount": amount}
	if err := c.do(ctx, http.MethodPost, "/api/credits", nil, body, &out); err != nil {
		return 0, err
	}
	return out.NewBalance, nil
}

// DeductCredits charges a balance and returns the new balance.
func (c *Client) DeductCredits(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var out struct {
		NewBalance int `json:"newBalance"`
	}
	body := map[string]any{"userId": userID, "amount": amount, "reason": reason}
	if err := c.do(ctx, http.MethodPatch, "/api/credits", nil, body, &out); err != nil {
		return 0, err
	}
	return out.NewBalance, nil
}

// ListCalls returns a user's recent calls with aggregates.
func (c *Client) ListCalls(ctx context.Context, userID string, limit int) (*Calls, error) {
	q := url.Values{"userId": {userID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out Calls
	if err := c.do(ctx, http.MethodGet, "/api/calls", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SESSIONS, CARTRIDGES, CHAT
// =============================================================================

// Transcript returns a session's messages, oldest first.
func (c *Client) Transcript(ctx context.Context, sessionID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/messages", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Cartridges lists the server's cartridges.
func (c *Client) Cartridges(ctx context.Context) ([]models.Cartridge, error) {
	var out []models.Cartridge
	if err := c.do(ctx, http.MethodGet, "/api/cartridges", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat sends one message and returns the reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
