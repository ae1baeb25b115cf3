package openassist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the OpenAssist REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// HandleRequest is the payload for starting or continuing a conversation.
type HandleRequest struct {
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	SessionID  string `json:"session_id,omitempty"`
	SecureMode bool   `json:"secure_mode,omitempty"`
}

// ResumeRequest is the payload for answering a pending clarification.
type ResumeRequest struct {
	UserID    string `json:"user_id"`
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

// UsedTool describes one tool invocation recorded in a response.
type UsedTool struct {
	Name    string         `json:"name"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs any            `json:"outputs,omitempty"`
	Status  string         `json:"status"`
}

// Citation points at a source document fragment backing an answer.
type Citation struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Response is the assistant's reply: either a final answer or a
// clarification question with options the user can pick from.
type Response struct {
	Type        string     `json:"type"`
	Answer      string     `json:"answer,omitempty"`
	Message     string     `json:"message,omitempty"`
	Options     []string   `json:"options,omitempty"`
	UsedTools   []UsedTool `json:"used_tools,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	SecureMode  bool       `json:"secure_mode,omitempty"`
	MaskedInput string     `json:"masked_input,omitempty"`
}

// IsClarification reports whether the assistant is waiting for user input.
func (r *Response) IsClarification() bool {
	return r != nil && r.Type == "clarification"
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// DocumentSubmission is the payload for submitting a knowledge document.
type DocumentSubmission struct {
	ID       string         `json:"id,omitempty"`
	Filename string         `json:"filename"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Document is the server view of a submitted knowledge document.
type Document struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Chunks    int    `json:"chunks"`
	LastError string `json:"last_error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("openassist api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the OpenAssist API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken stores a bearer token attached to every subsequent request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Handle starts or continues a conversation turn.
func (c *Client) Handle(ctx context.Context, req HandleRequest) (*Response, error) {
	var resp Response
	if err := c.post(ctx, "/api/v1/agent/handle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume answers a pending clarification.
func (c *Client) Resume(ctx context.Context, req ResumeRequest) (*Response, error) {
	var resp Response
	if err := c.post(ctx, "/api/v1/agent/resume", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tools lists the tools registered on the server.
func (c *Client) Tools(ctx context.Context) ([]ToolInfo, error) {
	var payload struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.get(ctx, "/api/v1/tools", &payload); err != nil {
		return nil, err
	}
	return payload.Tools, nil
}

// SubmitDocument queues a knowledge document for ingestion.
func (c *Client) SubmitDocument(ctx context.Context, submission DocumentSubmission) (*Document, error) {
	var doc Document
	if err := c.post(ctx, "/api/v1/documents", submission, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument fetches the ingestion state of a document by identifier.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.get(ctx, "/api/v1/documents/"+url.PathEscape(id), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
