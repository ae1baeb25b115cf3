package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("默认监听地址不符: %s", cfg.Server.Address)
	}
	if cfg.Agent.MaxRounds != 6 || cfg.Agent.MinConfidence != 0.7 || cfg.Agent.ShortTermLimit != 5 {
		t.Fatalf("编排默认值不符: %+v", cfg.Agent)
	}
	if cfg.Agent.RelevanceCutoff != 0.65 || cfg.Agent.RecallTopK != 3 {
		t.Fatalf("召回默认值不符: %+v", cfg.Agent)
	}
	if cfg.Storage.SessionStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("默认驱动不符: %+v", cfg.Storage)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Fatalf("切分默认值不符: %+v", cfg.Ingest)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("数据目录不符: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
		"server": {"address": ":9000"},
		"auth": {"mode": "token", "seeds": [{"token": "secret", "name": "ops"}]},
		"storage": {"session_store": {"driver": "redis", "address": "localhost:6379"}},
		"queue": {"driver": "rabbitmq", "url": "amqp://localhost"},
		"agent": {"max_rounds": 2},
		"knowledge": {"seed_path": "seeds.json"}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.Agent.MaxRounds != 2 {
		t.Fatalf("覆盖值未生效: %+v", cfg)
	}
	if cfg.Auth.Mode != "token" || len(cfg.Auth.Seeds) != 1 || cfg.Auth.Seeds[0].Name != "ops" {
		t.Fatalf("鉴权配置不符: %+v", cfg.Auth)
	}
	if cfg.Storage.SessionStore.Driver != "redis" || cfg.Queue.Driver != "rabbitmq" {
		t.Fatalf("驱动配置不符: %+v", cfg)
	}
	if cfg.Knowledge.SeedPath != filepath.Join(dir, "seeds.json") {
		t.Fatalf("知识库路径未解析为绝对路径: %s", cfg.Knowledge.SeedPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应报错")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("缺失文件应报错")
	}
}
