package openassist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/handle" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var req HandleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.UserID != "u1" || req.Text != "hello" {
			t.Fatalf("unexpected payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Response{Type: "answer", Answer: "hi"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("secret")

	resp, err := client.Handle(context.Background(), HandleRequest{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Answer != "hi" || resp.IsClarification() {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestResumeClarification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/resume" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Response{
			Type:    "clarification",
			Message: "Which city?",
			Options: []string{"Singapore", "Tokyo"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Resume(context.Background(), ResumeRequest{UserID: "u1", Reply: "weather"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resp.IsClarification() || len(resp.Options) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestToolsAndDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/tools":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"tools": []ToolInfo{{Name: "weather", Description: "city weather"}},
			})
		case r.URL.Path == "/api/v1/documents" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Document{ID: "doc-1", Status: "pending"})
		case r.URL.Path == "/api/v1/documents/doc-1":
			_ = json.NewEncoder(w).Encode(Document{ID: "doc-1", Status: "succeeded", Chunks: 3})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "weather" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	doc, err := client.SubmitDocument(context.Background(), DocumentSubmission{Filename: "faq.txt", Content: "text"})
	if err != nil {
		t.Fatalf("submit document: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	doc, err = client.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != "succeeded" || doc.Chunks != 3 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestAPIErrorPropagation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "user_id 和 text 不能为空", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Handle(context.Background(), HandleRequest{})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
