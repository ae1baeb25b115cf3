package auth

import "context"

type subjectKey struct{}

// WithSubject 把鉴权得到的主体写入请求上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 取出请求所属的主体，返回副本避免处理器
// 意外修改共享状态；上下文中没有主体时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	subject, ok := ctx.Value(subjectKey{}).(*Subject)
	if !ok {
		return nil
	}
	clone := *subject
	return &clone
}
