package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了助手服务在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Guard     GuardConfig     `json:"guard"`
	Ingest    IngestConfig    `json:"ingest"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// AuthConfig 控制请求鉴权方式与预置令牌。
type AuthConfig struct {
	Mode  string     `json:"mode"`
	Seeds []AuthSeed `json:"seeds"`
}

// AuthSeed 描述一条预置的访问令牌。
type AuthSeed struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

// StorageConfig 统一描述会话与向量存储的后端连接信息。
type StorageConfig struct {
	SessionStore  SessionStoreConfig  `json:"session_store"`
	VectorStore   VectorStoreConfig   `json:"vector_store"`
	DocumentStore DocumentStoreConfig `json:"document_store"`
}

// SessionStoreConfig 支持 memory、mysql、redis 驱动。
type SessionStoreConfig struct {
	Driver     string `json:"driver"`
	DSN        string `json:"dsn"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	KeyPrefix  string `json:"key_prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// VectorStoreConfig 支持 memory、mysql 驱动。
type VectorStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// DocumentStoreConfig 支持 memory、mysql 驱动。
type DocumentStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述文档入库队列，支持 memory、redis、rabbitmq。
type QueueConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Prefetch int    `json:"prefetch"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string  `json:"provider"`
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// AgentConfig 控制编排循环的阈值。
type AgentConfig struct {
	MaxRounds       int     `json:"max_rounds"`
	MinConfidence   float64 `json:"min_confidence"`
	ShortTermLimit  int     `json:"short_term_limit"`
	RelevanceCutoff float64 `json:"relevance_cutoff"`
	RecallTopK      int     `json:"recall_top_k"`
}

// GuardConfig 控制安全过滤的附加敏感话题。
type GuardConfig struct {
	ExtraTopics []string `json:"extra_topics"`
}

// IngestConfig 控制文档入库流水线。
type IngestConfig struct {
	Workers      int `json:"workers"`
	MaxRetries   int `json:"max_retries"`
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// KnowledgeConfig 描述启动时预置的知识库。
type KnowledgeConfig struct {
	SeedPath string `json:"seed_path"`
}

// LoggingConfig 控制应用与审计日志输出。
type LoggingConfig struct {
	Level        string   `json:"level"`
	Format       string   `json:"format"`
	OutputPaths  []string `json:"output_paths"`
	AuditEnabled bool     `json:"audit_enabled"`
	AuditPath    string   `json:"audit_path"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Storage.SessionStore.Driver == "" {
		c.Storage.SessionStore.Driver = "memory"
	}
	if c.Storage.SessionStore.KeyPrefix == "" {
		c.Storage.SessionStore.KeyPrefix = "openassist"
	}
	if c.Storage.VectorStore.Driver == "" {
		c.Storage.VectorStore.Driver = "memory"
	}
	if c.Storage.DocumentStore.Driver == "" {
		c.Storage.DocumentStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = 6
	}
	if c.Agent.MinConfidence <= 0 {
		c.Agent.MinConfidence = 0.7
	}
	if c.Agent.ShortTermLimit <= 0 {
		c.Agent.ShortTermLimit = 5
	}
	if c.Agent.RelevanceCutoff <= 0 {
		c.Agent.RelevanceCutoff = 0.65
	}
	if c.Agent.RecallTopK <= 0 {
		c.Agent.RecallTopK = 3
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 2
	}
	if c.Ingest.MaxRetries <= 0 {
		c.Ingest.MaxRetries = 3
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 500
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = 50
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Knowledge.SeedPath != "" && !filepath.IsAbs(c.Knowledge.SeedPath) {
		c.Knowledge.SeedPath = filepath.Join(baseDir, c.Knowledge.SeedPath)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
