package plugin

import (
	"context"
	"testing"

	"OpenAssist/internal/tool"
)

type echoTool struct{}

func (echoTool) Spec() tool.Spec { return tool.Spec{Description: "echoes its input"} }

func (echoTool) Run(_ context.Context, params map[string]any) (any, error) {
	return map[string]any{"echo": params["text"]}, nil
}

type fakePlugin struct {
	info    Info
	started bool
	stopped bool
}

func (p *fakePlugin) Info() Info { return p.info }

func (p *fakePlugin) Configure(map[string]any) error { return nil }

func (p *fakePlugin) Init(*ExecutionContext) error { return nil }

func (p *fakePlugin) Start(*ExecutionContext) error {
	p.started = true
	return nil
}

func (p *fakePlugin) Stop(*ExecutionContext) error {
	p.stopped = true
	return nil
}

func (p *fakePlugin) Tools() map[string]tool.Tool {
	return map[string]tool.Tool{"echo": echoTool{}}
}

func TestManagerLifecycleAndTools(t *testing.T) {
	mgr, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	p := &fakePlugin{info: Info{ID: "echo", Category: TypeTool}}
	if err := mgr.Register("echo", p, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if state, _ := mgr.State("echo"); state != StateRegistered {
		t.Fatalf("expected registered, got %s", state)
	}

	registry := tool.NewRegistry(nil)
	mgr.RegisterTools(registry)
	if len(registry.Names()) != 0 {
		t.Fatal("tools must not surface before the plugin starts")
	}

	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if !p.started {
		t.Fatal("plugin was not started")
	}
	mgr.RegisterTools(registry)
	names := registry.Names()
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("expected echo tool, got %v", names)
	}

	if err := mgr.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if !p.stopped {
		t.Fatal("plugin was not stopped")
	}
}

type fakeLoader struct {
	plugin Plugin
	symbol string
}

func (l *fakeLoader) Load(_, symbol string) (Plugin, error) {
	l.symbol = symbol
	return l.plugin, nil
}

func TestManagerLoadsManifestWithToolAllowlist(t *testing.T) {
	loader := &fakeLoader{plugin: &fakePlugin{info: Info{ID: "echo"}}}
	mgr, err := NewManager(ManagerConfig{
		Plugins: map[string]PluginConfig{
			"echo": {Enabled: true, Path: "echo.so", Symbol: "EchoPlugin", Tools: []string{"other"}},
		},
	}, WithLoader(loader))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if loader.symbol != "EchoPlugin" {
		t.Fatalf("expected symbol from manifest, got %q", loader.symbol)
	}

	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	registry := tool.NewRegistry(nil)
	mgr.RegisterTools(registry)
	if len(registry.Names()) != 0 {
		t.Fatalf("allowlist should filter out the echo tool, got %v", registry.Names())
	}
}

func TestManagerRejectsCapabilityWithoutPolicy(t *testing.T) {
	mgr, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	p := &fakePlugin{info: Info{ID: "net", Capabilities: []Capability{CapabilityNetwork}}}
	if err := mgr.Register("net", p, nil, IsolationPolicy{}); err == nil {
		t.Fatal("expected capability validation error")
	}
}

func TestManagerRejectsDeniedCapability(t *testing.T) {
	mgr, err := NewManager(ManagerConfig{Defaults: IsolationPolicy{
		DeniedCapabilities: []Capability{CapabilityExecution},
	}})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	p := &fakePlugin{info: Info{ID: "exec", Capabilities: []Capability{CapabilityExecution}}}
	if err := mgr.Register("exec", p, nil, IsolationPolicy{}); err == nil {
		t.Fatal("expected denied capability error")
	}
}
