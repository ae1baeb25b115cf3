package api

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenAssist/internal/agent"
	"OpenAssist/internal/auth"
	"OpenAssist/internal/guard"
	"OpenAssist/internal/ingest"
	"OpenAssist/internal/intent"
	"OpenAssist/internal/llm"
	"OpenAssist/internal/memory"
	"OpenAssist/internal/storage/mysql"
	"OpenAssist/internal/tool"
	"OpenAssist/internal/vector"
)

type stubLLM struct{}

func (s *stubLLM) Chat(context.Context, []llm.Message) (string, error) {
	return "", stdErrors.New("llm offline")
}

type funcTool struct {
	spec tool.Spec
	fn   func(ctx context.Context, params map[string]any) (any, error)
}

func (t funcTool) Spec() tool.Spec { return t.spec }

func (t funcTool) Run(ctx context.Context, params map[string]any) (any, error) {
	return t.fn(ctx, params)
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	kv, err := mysql.NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建 KV 存储失败: %v", err)
	}
	client := &stubLLM{}
	registry := tool.NewRegistry(map[string]tool.Tool{
		"weather": funcTool{
			spec: tool.Spec{Description: "查询城市天气"},
			fn: func(_ context.Context, params map[string]any) (any, error) {
				return map[string]any{"city": params["city"], "temperature": 28, "condition": "sunny"}, nil
			},
		},
	})
	orchestrator := agent.New(
		client,
		intent.NewRecognizer(client),
		registry,
		guard.New(),
		memory.NewSessionMemory(kv, time.Hour),
		memory.NewLongTermMemory(vector.NewMemoryIndex()),
	)
	return NewServer(":0", orchestrator, registry, opts...)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("序列化请求失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler(context.Background())

	rec := postJSON(t, handler, "/api/v1/agent/handle", HandleRequest{
		UserID: "u1", Text: "weather in Singapore today", SessionID: "s1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %s", rec.Code, rec.Body.String())
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != agent.ResponseAnswer {
		t.Fatalf("期望 answer, 得到 %s", resp.Type)
	}
	if len(resp.UsedTools) != 1 || resp.UsedTools[0].Name != "weather" {
		t.Fatalf("期望调用 weather 工具, 得到 %+v", resp.UsedTools)
	}
}

func TestHandleValidation(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler(context.Background())

	rec := postJSON(t, handler, "/api/v1/agent/handle", HandleRequest{UserID: "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("缺少 text 应返回 400, 得到 %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/handle", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET 应返回 405, 得到 %d", rec.Code)
	}
}

func TestEmptySessionDefaultsAcrossHandleAndResume(t *testing.T) {
	// 省略 session_id 的 handle 与 resume 必须落在同一个 "default"
	// 会话上,否则 resume 永远找不到挂起的澄清。
	kv, err := mysql.NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建 KV 存储失败: %v", err)
	}
	client := &stubLLM{}
	registry := tool.NewRegistry(map[string]tool.Tool{
		"weather": funcTool{
			spec: tool.Spec{Description: "查询城市天气"},
			fn: func(context.Context, map[string]any) (any, error) {
				return nil, stdErrors.New("upstream offline")
			},
		},
	})
	orchestrator := agent.New(
		client,
		intent.NewRecognizer(client),
		registry,
		guard.New(),
		memory.NewSessionMemory(kv, time.Hour),
		memory.NewLongTermMemory(vector.NewMemoryIndex()),
	)
	handler := NewServer(":0", orchestrator, registry).Handler(context.Background())

	rec := postJSON(t, handler, "/api/v1/agent/handle", HandleRequest{
		UserID: "u1", Text: "weather in Singapore today",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d: %s", rec.Code, rec.Body.String())
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != agent.ResponseClarification {
		t.Fatalf("工具失败应触发澄清: %+v", resp)
	}

	rec = postJSON(t, handler, "/api/v1/agent/resume", ResumeRequest{
		UserID: "u1", Reply: "Cancel",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != agent.ResponseAnswer || !strings.Contains(resp.Answer, "cancelled") {
		t.Fatalf("默认会话上的 resume 未找到挂起状态: %+v", resp)
	}
}

func TestResumeWithoutPending(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler(context.Background())

	rec := postJSON(t, handler, "/api/v1/agent/resume", ResumeRequest{
		UserID: "u1", Reply: "retry", SessionID: "s-none",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != agent.ResponseAnswer || !strings.Contains(resp.Answer, "No pending clarification") {
		t.Fatalf("无挂起澄清时的响应不符: %+v", resp)
	}
}

func TestToolsEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	var payload struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(payload.Tools) != 1 || payload.Tools[0].Name != "weather" {
		t.Fatalf("工具列表不符: %+v", payload.Tools)
	}
}

func TestDocumentsEndpoint(t *testing.T) {
	store := ingest.NewMemoryStore()
	queue := ingest.NewMemoryQueue(8)
	svc := ingest.NewService(store, queue, 3)
	server := newTestServer(t, WithIngestService(svc))
	handler := server.Handler(context.Background())

	rec := postJSON(t, handler, "/api/v1/documents", ingest.SubmitRequest{
		Filename: "faq.txt", Content: "how to reset a password",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 得到 %d: %s", rec.Code, rec.Body.String())
	}
	var doc ingest.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if doc.ID == "" || doc.Status != ingest.StatusPending {
		t.Fatalf("文档响应不符: %+v", doc)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec2.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-absent", nil)
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req)
	if rec3.Code != http.StatusNotFound {
		t.Fatalf("未知文档应返回 404, 得到 %d", rec3.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=10", nil)
	rec4 := httptest.NewRecorder()
	handler.ServeHTTP(rec4, req)
	if rec4.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec4.Code)
	}
	var docs []ingest.Document
	if err := json.Unmarshal(rec4.Body.Bytes(), &docs); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("期望 1 份文档, 得到 %d", len(docs))
	}
}

func TestAuthMiddleware(t *testing.T) {
	authSvc := auth.NewService(
		auth.Config{Mode: auth.ModeToken},
		auth.NewMemoryStore([]auth.Seed{{Token: "secret", Name: "ops"}}),
	)
	server := newTestServer(t, WithAuthService(authSvc))
	handler := server.Handler(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("缺少令牌应返回 401, 得到 %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("有效令牌应返回 200, 得到 %d", rec.Code)
	}
}

func TestHandleFallsBackToAuthenticatedSubject(t *testing.T) {
	authSvc := auth.NewService(
		auth.Config{Mode: auth.ModeToken},
		auth.NewMemoryStore([]auth.Seed{{Token: "secret", ID: "ops-1", Name: "ops"}}),
	)
	server := newTestServer(t, WithAuthService(authSvc))
	handler := server.Handler(context.Background())

	body, err := json.Marshal(HandleRequest{Text: "weather in Singapore today", SessionID: "s-auth"})
	if err != nil {
		t.Fatalf("序列化请求失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/handle", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("省略 user_id 时应回退到鉴权主体, 得到 %d: %s", rec.Code, rec.Body.String())
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != agent.ResponseAnswer {
		t.Fatalf("期望 answer, 得到 %s", resp.Type)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "openassist_http_requests_total") {
		t.Fatalf("指标输出不符: %s", rec.Body.String())
	}
}

func TestShutdownContextRejectsRequests(t *testing.T) {
	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	handler := server.Handler(ctx)
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("关闭后应返回 503, 得到 %d", rec.Code)
	}
}
