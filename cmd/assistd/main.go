package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"OpenAssist/internal/agent"
	"OpenAssist/internal/api"
	"OpenAssist/internal/auth"
	"OpenAssist/internal/config"
	"OpenAssist/internal/guard"
	"OpenAssist/internal/ingest"
	"OpenAssist/internal/intent"
	"OpenAssist/internal/knowledge"
	"OpenAssist/internal/llm"
	"OpenAssist/internal/llm/openai"
	"OpenAssist/internal/memory"
	"OpenAssist/internal/observability/alerting"
	"OpenAssist/internal/observability/metrics"
	"OpenAssist/internal/storage/mysql"
	redisstore "OpenAssist/internal/storage/redis"
	"OpenAssist/internal/tool"
	knowledgetool "OpenAssist/internal/tool/knowledge"
	recalltool "OpenAssist/internal/tool/recall"
	"OpenAssist/internal/tool/weather"
	"OpenAssist/internal/vector"
	"OpenAssist/pkg/logger"
)

// main 是助手守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("assistd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("OPENASSIST_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "openassist.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditEnabled,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	// 会话 KV 存储。
	kvStore, err := createKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = kvStore.Close()
	}()

	// 向量索引。
	index, err := createVectorIndex(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Knowledge.SeedPath != "" {
		seeds, err := knowledge.LoadSeeds(cfg.Knowledge.SeedPath)
		if err != nil {
			return err
		}
		count, err := knowledge.SeedIndex(ctx, index, seeds, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
		if err != nil {
			return err
		}
		logger.L().Info("知识库预置完成", "seeds", len(seeds), "chunks", count)
	}

	ttl := time.Duration(cfg.Storage.SessionStore.TTLSeconds) * time.Second
	sessionMemory := memory.NewSessionMemory(kvStore, ttl)
	longterm := memory.NewLongTermMemory(index,
		memory.WithRecallTopK(cfg.Agent.RecallTopK),
		memory.WithRecallCutoff(cfg.Agent.RelevanceCutoff),
	)

	registry := tool.NewRegistry(map[string]tool.Tool{
		"weather": weather.New(weather.Config{}),
		"vdb":     knowledgetool.New(index),
		"memory":  recalltool.New(longterm),
	})

	orchestrator := agent.New(
		llmClient,
		intent.NewRecognizer(llmClient, intent.WithMinConfidence(cfg.Agent.MinConfidence)),
		registry,
		guard.New(guard.WithExtraTopics(cfg.Guard.ExtraTopics...)),
		sessionMemory,
		longterm,
		agent.WithMaxRounds(cfg.Agent.MaxRounds),
		agent.WithShortTermLimit(cfg.Agent.ShortTermLimit),
		agent.WithRelevanceCutoff(cfg.Agent.RelevanceCutoff),
	)

	// 文档入库流水线。
	docStore, err := createDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = docStore.Close()
	}()

	docQueue, err := createIngestQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := docQueue.Close(); err != nil {
			logger.L().Warn("关闭入库队列失败", "error", err)
		}
	}()

	ingestService := ingest.NewService(docStore, docQueue, cfg.Ingest.MaxRetries)
	processor := ingest.NewProcessor(index, docStore, docQueue, docQueue,
		ingest.WithWorkerCount(cfg.Ingest.Workers),
		ingest.WithChunking(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		ingest.WithProcessorLogger(logger.Named("ingest")),
		ingest.WithAlertDispatcher(alerting.NewFanout(&alerting.LogNotifier{})),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("入库处理器异常退出", "error", err)
		}
	}()

	// 独立的指标端口，未配置时继续复用主服务的 /metrics。
	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err)
			}
		}()
	}

	authService, err := createAuthService(ctx, cfg)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, orchestrator, registry,
		api.WithIngestService(ingestService),
		api.WithAuthService(authService),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENASSIST_LLM_API_KEY"))
		}
		if apiKey == "" {
			return nil, errors.New("openai provider 需要配置 api_key 或环境变量 OPENASSIST_LLM_API_KEY")
		}
		return openai.NewClient(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createKVStore(ctx context.Context, cfg *config.Config) (memory.KV, error) {
	switch cfg.Storage.SessionStore.Driver {
	case "", "memory":
		return mysql.NewMemoryKVStore(cfg.Runtime.DataDir)
	case "mysql":
		return mysql.NewSQLKVStore(ctx, mysql.Config{DSN: cfg.Storage.SessionStore.DSN})
	case "redis":
		return redisstore.NewKVStore(ctx, redisstore.Config{
			Addr:      cfg.Storage.SessionStore.Address,
			Password:  cfg.Storage.SessionStore.Password,
			DB:        cfg.Storage.SessionStore.DB,
			KeyPrefix: cfg.Storage.SessionStore.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Storage.SessionStore.Driver)
	}
}

func createVectorIndex(ctx context.Context, cfg *config.Config) (vector.Index, error) {
	switch cfg.Storage.VectorStore.Driver {
	case "", "memory":
		return vector.NewMemoryIndex(), nil
	case "mysql":
		return mysql.NewSQLVectorIndex(ctx, mysql.Config{DSN: cfg.Storage.VectorStore.DSN})
	default:
		return nil, fmt.Errorf("未知的向量存储驱动: %s", cfg.Storage.VectorStore.Driver)
	}
}

func createDocumentStore(ctx context.Context, cfg *config.Config) (ingest.Store, error) {
	switch cfg.Storage.DocumentStore.Driver {
	case "", "memory":
		return ingest.NewMemoryStore(), nil
	case "mysql":
		return ingest.NewMySQLStore(ctx, cfg.Storage.DocumentStore.DSN)
	default:
		return nil, fmt.Errorf("未知的文档存储驱动: %s", cfg.Storage.DocumentStore.Driver)
	}
}

func createIngestQueue(cfg *config.Config) (ingest.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return ingest.NewMemoryQueue(1024), nil
	case "redis":
		return ingest.NewRedisQueue(ingest.RedisQueueConfig{
			Address:  cfg.Queue.Address,
			Password: cfg.Queue.Password,
			DB:       cfg.Queue.DB,
			Queue:    cfg.Queue.Name,
		})
	case "rabbitmq":
		return ingest.NewRabbitMQQueue(ingest.RabbitMQConfig{
			URL:      cfg.Queue.URL,
			Queue:    cfg.Queue.Name,
			Prefetch: cfg.Queue.Prefetch,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func createAuthService(ctx context.Context, cfg *config.Config) (*auth.Service, error) {
	mode := auth.Mode(cfg.Auth.Mode)
	if mode == auth.ModeDisabled {
		return auth.NewService(auth.Config{Mode: auth.ModeDisabled}, nil), nil
	}
	if mode != auth.ModeToken {
		return nil, fmt.Errorf("未知的鉴权模式: %s", cfg.Auth.Mode)
	}

	seeds := make([]auth.Seed, 0, len(cfg.Auth.Seeds))
	for _, seed := range cfg.Auth.Seeds {
		seeds = append(seeds, auth.Seed{
			Token:    seed.Token,
			ID:       seed.ID,
			Name:     seed.Name,
			Disabled: seed.Disabled,
		})
	}

	// 会话存储走 MySQL 时，令牌也落库；否则使用内存存储。
	var store auth.Store
	if cfg.Storage.SessionStore.Driver == "mysql" {
		sqlStore, err := mysql.NewSQLTokenStore(ctx, mysql.Config{DSN: cfg.Storage.SessionStore.DSN})
		if err != nil {
			return nil, err
		}
		if err := sqlStore.ApplySeed(ctx, seeds); err != nil {
			return nil, err
		}
		store = sqlStore
	} else {
		store = auth.NewMemoryStore(seeds)
	}
	return auth.NewService(auth.Config{Mode: auth.ModeToken, Seeds: seeds}, store), nil
}
