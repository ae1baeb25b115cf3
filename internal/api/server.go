package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenAssist/internal/agent"
	"OpenAssist/internal/auth"
	"OpenAssist/internal/ingest"
	"OpenAssist/internal/observability/metrics"
	"OpenAssist/internal/tool"
)

// Server 负责暴露 REST 接口，供外部驱动对话编排器。
type Server struct {
	addr         string
	orchestrator *agent.Orchestrator
	registry     *tool.Registry
	ingestor     *ingest.Service
	authService  *auth.Service
}

// ServerOption 配置可选依赖。
type ServerOption func(*Server)

// WithIngestService 挂载文档入库服务。
func WithIngestService(svc *ingest.Service) ServerOption {
	return func(s *Server) { s.ingestor = svc }
}

// WithAuthService 挂载请求鉴权服务。
func WithAuthService(svc *auth.Service) ServerOption {
	return func(s *Server) { s.authService = svc }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, orchestrator *agent.Orchestrator, registry *tool.Registry, opts ...ServerOption) *Server {
	s := &Server{addr: addr, orchestrator: orchestrator, registry: registry}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HandleRequest 是 /agent/handle 的请求体。
type HandleRequest struct {
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
	SecureMode bool   `json:"secure_mode"`
}

// ResumeRequest 是 /agent/resume 的请求体。
type ResumeRequest struct {
	UserID    string `json:"user_id"`
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent/handle", s.handleHandle)
	mux.HandleFunc("/api/v1/agent/resume", s.handleResume)
	mux.HandleFunc("/api/v1/tools", s.handleTools)
	mux.HandleFunc("/api/v1/documents", s.handleDocuments)
	mux.HandleFunc("/api/v1/documents/", s.handleDocumentByID)
	mux.Handle("/metrics", metrics.Handler())

	var handler http.Handler = mux
	if s.authService != nil {
		handler = s.authService.Middleware(auth.MiddlewareConfig{})(handler)
	}
	return withContext(ctx, handler)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHandle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orchestrator == nil {
		http.Error(w, "编排器未初始化", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var req HandleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		metrics.ObserveHTTPRequest("agent_handle", r.Method, http.StatusBadRequest, time.Since(start))
		return
	}
	userID := requestUserID(r, req.UserID)
	if userID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "user_id 和 text 不能为空", http.StatusBadRequest)
		metrics.ObserveHTTPRequest("agent_handle", r.Method, http.StatusBadRequest, time.Since(start))
		return
	}

	resp := s.orchestrator.Handle(r.Context(), userID, req.Text, sessionOrDefault(req.SessionID), req.SecureMode)
	metrics.ObserveConversation(string(resp.Type))
	metrics.ObserveHTTPRequest("agent_handle", r.Method, http.StatusOK, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orchestrator == nil {
		http.Error(w, "编排器未初始化", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		metrics.ObserveHTTPRequest("agent_resume", r.Method, http.StatusBadRequest, time.Since(start))
		return
	}
	userID := requestUserID(r, req.UserID)
	if userID == "" || strings.TrimSpace(req.Reply) == "" {
		http.Error(w, "user_id 和 reply 不能为空", http.StatusBadRequest)
		metrics.ObserveHTTPRequest("agent_resume", r.Method, http.StatusBadRequest, time.Since(start))
		return
	}

	resp := s.orchestrator.Resume(r.Context(), userID, req.Reply, sessionOrDefault(req.SessionID))
	metrics.ObserveConversation(string(resp.Type))
	metrics.ObserveHTTPRequest("agent_resume", r.Method, http.StatusOK, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil {
		http.Error(w, "工具注册中心未初始化", http.StatusServiceUnavailable)
		return
	}

	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	}
	specs := s.registry.Describe()
	tools := make([]toolInfo, 0, len(specs))
	for _, name := range s.registry.Names() {
		spec := specs[name]
		tools = append(tools, toolInfo{Name: name, Description: spec.Description, Parameters: spec.Parameters})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		http.Error(w, "入库服务未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req ingest.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		doc, err := s.ingestor.Submit(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, doc)
	case http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		docs, err := s.ingestor.List(r.Context(), ingest.ListOptions{Limit: limit})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.ingestor == nil {
		http.Error(w, "入库服务未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/documents/")
	if id == "" {
		http.Error(w, "缺少文档 ID", http.StatusBadRequest)
		return
	}
	doc, err := s.ingestor.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ingest.ErrDocumentNotFound) {
			http.Error(w, "文档不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// sessionOrDefault 把空白的 session_id 归入 "default" 会话,避免
// 空字符串悄悄成为一个独立的会话键。
func sessionOrDefault(id string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	return "default"
}

// requestUserID 优先使用请求体中的 user_id，缺省时回退到鉴权主体。
func requestUserID(r *http.Request, explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		return subject.ID
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
