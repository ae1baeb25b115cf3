package tool

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"OpenAssist/internal/observability/metrics"
	"OpenAssist/pkg/logger"
)

// Envelope 是所有工具调用结果的统一形态。取值只有以下几种：
// 原样透传的字典、{"results": 列表}、{"text": 字符串}、
// {"result": 标量}，以及失败时的 {"error": 描述}。
type Envelope map[string]any

// IsError 判断信封是否为失败信封。
func (e Envelope) IsError() bool {
	_, ok := e["error"]
	return ok
}

// ErrorMessage 返回失败信封中的描述，成功信封返回空串。
func (e Envelope) ErrorMessage() string {
	if v, ok := e["error"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Registry 是工具的统一注册与调度入口。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建注册中心并登记给定工具。
func NewRegistry(tools map[string]Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for name, t := range tools {
		r.Register(name, t)
	}
	return r
}

// Register 登记一个工具。同名登记会覆盖旧实现。
func (r *Registry) Register(name string, t Tool) {
	name = strings.TrimSpace(name)
	if name == "" || t == nil {
		return
	}
	r.mu.Lock()
	r.tools[name] = t
	r.mu.Unlock()
}

// Has 报告指定工具是否已登记，接受与 Invoke 相同的
// "tool.method" 前缀形式。
func (r *Registry) Has(name string) bool {
	if prefix, _, found := strings.Cut(name, "."); found {
		name = prefix
	}
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names 返回已登记的工具名，按字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe 返回所有工具的描述，供规划器组装提示词。
func (r *Registry) Describe() map[string]Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make(map[string]Spec, len(r.tools))
	for name, t := range r.tools {
		specs[name] = t.Spec()
	}
	return specs
}

// Invoke 调用指定工具并把结果归一化为信封。规划器给出的名字可能
// 带有 "tool.method" 形式的后缀，此时只取前缀作为查找键。适配器的
// 错误与 panic 都被吸收为错误信封，绝不向上传播。
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (envelope Envelope) {
	lookup := name
	if prefix, _, found := strings.Cut(name, "."); found {
		lookup = prefix
	}
	lookup = strings.TrimSpace(lookup)

	defer func() {
		metrics.ObserveToolInvocation(lookup, envelope.IsError())
	}()

	r.mu.RLock()
	t, ok := r.tools[lookup]
	r.mu.RUnlock()
	if !ok {
		return Envelope{"error": fmt.Sprintf("tool '%s' not found in registry", lookup)}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.L().Error("工具执行发生 panic",
				slog.String("tool", lookup),
				slog.Any("panic", recovered),
			)
			envelope = Envelope{"error": fmt.Sprintf("tool '%s' panicked: %v", lookup, recovered)}
		}
	}()

	if params == nil {
		params = map[string]any{}
	}
	result, err := t.Run(ctx, params)
	if err != nil {
		return Envelope{"error": err.Error()}
	}
	return normalize(result)
}

// normalize 把任意返回值收敛成统一信封。
func normalize(result any) Envelope {
	switch v := result.(type) {
	case nil:
		return Envelope{"result": nil}
	case Envelope:
		return v
	case map[string]any:
		return Envelope(v)
	case string:
		return Envelope{"text": v}
	}

	// 任意切片都折叠为 results 列表。
	value := reflect.ValueOf(result)
	if value.Kind() == reflect.Slice || value.Kind() == reflect.Array {
		items := make([]any, value.Len())
		for i := 0; i < value.Len(); i++ {
			items[i] = value.Index(i).Interface()
		}
		return Envelope{"results": items}
	}

	return Envelope{"result": result}
}
