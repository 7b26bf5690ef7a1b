package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"sandbox/internal/model/auth"
	"sandbox/internal/pkg/jwt"
)

// IdentityResolver 根据 Authorization header 解析请求身份
// 错误为 jwt 包中定义的哨兵错误，由中间件映射为 HTTP 状态码
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) (*auth.Identity, error)
}

// TokenVerifier 验证 Bearer Token
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// tokenResolver 使用 Keycloak Token 解析身份
type tokenResolver struct {
	verifier TokenVerifier
}

// NewTokenResolver 创建基于 Token 的身份解析器
func NewTokenResolver(verifier TokenVerifier) IdentityResolver {
	return &tokenResolver{verifier: verifier}
}

// Resolve 解析身份
func (r *tokenResolver) Resolve(ctx context.Context, authorization string) (*auth.Identity, error) {
	token, err := jwt.ExtractBearer(authorization)
	if err != nil {
		return nil, err
	}
	return r.verifier.Verify(ctx, token)
}

// anonymousResolver 认证关闭时使用，所有请求共享同一个匿名身份
type anonymousResolver struct{}

// NewAnonymousResolver 创建匿名身份解析器
func NewAnonymousResolver() IdentityResolver {
	log.Warn().Str("identity", auth.AnonymousEmail).Msg("Authentication disabled, all requests use the anonymous identity")
	return anonymousResolver{}
}

// Resolve 始终返回匿名身份，不读取 Authorization header
func (anonymousResolver) Resolve(context.Context, string) (*auth.Identity, error) {
	return auth.Anonymous(), nil
}
