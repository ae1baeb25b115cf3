package tool

import "context"

// Spec 描述一个工具的用途与参数结构，用于提示词中的工具清单。
type Spec struct {
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool 是所有工具适配器必须实现的封闭接口。适配器只暴露一个
// Run 入口，返回值由注册中心统一归一化，错误同样由注册中心
// 转换成错误信封，不会穿透到规划循环。
type Tool interface {
	Spec() Spec
	Run(ctx context.Context, params map[string]any) (any, error)
}
