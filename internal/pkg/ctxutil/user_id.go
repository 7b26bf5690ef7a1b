package ctxutil

import (
	"context"

	"sandbox/internal/model/auth"
)

// identityKeyType 使用私有类型避免与其他 context key 冲突
type identityKeyType struct{}

var identityKey = identityKeyType{}

// WithIdentity 将请求身份注入到 context 中
// 说明：在认证中间件解析身份成功后调用：
//
//	ctx := ctxutil.WithIdentity(c.Request.Context(), identity)
//	c.Request = c.Request.WithContext(ctx)
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity 从 context 中解析请求身份
func GetIdentity(ctx context.Context) (*auth.Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey).(*auth.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, false
	}
	return identity, true
}

// GetUserID 从 context 中解析归属用户ID
// 返回值：
//   - string: 解析到的 userID
//   - bool  : 是否存在有效的 userID
func GetUserID(ctx context.Context) (string, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return identity.UserID, true
}
