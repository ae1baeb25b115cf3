package tool

import (
	"context"
	"errors"
	"testing"
)

type stubTool struct {
	spec   Spec
	result any
	err    error
	panics bool
}

func (s *stubTool) Spec() Spec { return s.spec }

func (s *stubTool) Run(ctx context.Context, params map[string]any) (any, error) {
	if s.panics {
		panic("boom")
	}
	return s.result, s.err
}

func TestInvokeNormalizesReturnValues(t *testing.T) {
	cases := []struct {
		name   string
		result any
		check  func(t *testing.T, env Envelope)
	}{
		{
			name:   "map passthrough",
			result: map[string]any{"temperature": 28},
			check: func(t *testing.T, env Envelope) {
				if env["temperature"] != 28 {
					t.Fatalf("expected passthrough, got %v", env)
				}
			},
		},
		{
			name:   "list wrapped",
			result: []string{"a", "b"},
			check: func(t *testing.T, env Envelope) {
				items, ok := env["results"].([]any)
				if !ok || len(items) != 2 {
					t.Fatalf("expected results list, got %v", env)
				}
			},
		},
		{
			name:   "string wrapped",
			result: "hello",
			check: func(t *testing.T, env Envelope) {
				if env["text"] != "hello" {
					t.Fatalf("expected text envelope, got %v", env)
				}
			},
		},
		{
			name:   "scalar wrapped",
			result: 42,
			check: func(t *testing.T, env Envelope) {
				if env["result"] != 42 {
					t.Fatalf("expected result envelope, got %v", env)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry(map[string]Tool{"stub": &stubTool{result: tc.result}})
			env := registry.Invoke(context.Background(), "stub", nil)
			if env.IsError() {
				t.Fatalf("unexpected error envelope: %v", env)
			}
			tc.check(t, env)
		})
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	registry := NewRegistry(nil)
	env := registry.Invoke(context.Background(), "missing", nil)
	if !env.IsError() {
		t.Fatalf("expected error envelope, got %v", env)
	}
}

func TestInvokeUsesNamePrefix(t *testing.T) {
	registry := NewRegistry(map[string]Tool{"weather": &stubTool{result: map[string]any{"ok": true}}})
	env := registry.Invoke(context.Background(), "weather.current", nil)
	if env.IsError() {
		t.Fatalf("prefix lookup failed: %v", env)
	}
}

func TestInvokeConvertsAdapterError(t *testing.T) {
	registry := NewRegistry(map[string]Tool{"broken": &stubTool{err: errors.New("connection refused")}})
	env := registry.Invoke(context.Background(), "broken", nil)
	if !env.IsError() {
		t.Fatalf("expected error envelope")
	}
	if env.ErrorMessage() != "connection refused" {
		t.Fatalf("unexpected error message: %q", env.ErrorMessage())
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	registry := NewRegistry(map[string]Tool{"panicky": &stubTool{panics: true}})
	env := registry.Invoke(context.Background(), "panicky", nil)
	if !env.IsError() {
		t.Fatalf("expected error envelope after panic")
	}
}

func TestDescribeListsAllTools(t *testing.T) {
	registry := NewRegistry(map[string]Tool{
		"weather":   &stubTool{spec: Spec{Description: "查询天气"}},
		"knowledge": &stubTool{spec: Spec{Description: "检索知识库"}},
	})
	specs := registry.Describe()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs["weather"].Description != "查询天气" {
		t.Fatalf("unexpected spec: %+v", specs["weather"])
	}
}
