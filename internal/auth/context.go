package auth

import "context"

type ctxKey int

const subjectCtxKey ctxKey = iota

// NewContext 返回携带调用方的子上下文。
func NewContext(parent context.Context, subject *Subject) context.Context {
	if subject == nil {
		return parent
	}
	return context.WithValue(parent, subjectCtxKey, subject)
}

// FromContext 取出中间件写入的调用方；认证关闭时 ok 为 false。
func FromContext(ctx context.Context) (subject *Subject, ok bool) {
	if ctx != nil {
		subject, ok = ctx.Value(subjectCtxKey).(*Subject)
	}
	return subject, ok && subject != nil
}

// Caller 返回调用方名称，未认证时返回空串。
func Caller(ctx context.Context) string {
	if subject, ok := FromContext(ctx); ok {
		return subject.Name
	}
	return ""
}
