package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sandbox/internal/pkg/ctxutil"
	httputil "sandbox/internal/pkg/http"
	"sandbox/internal/pkg/jwt"
	"sandbox/internal/service"
)

// Auth 认证中间件
// 从 Authorization header 中解析请求身份，成功后注入到 context
// 身份提供方不可用时返回 500，其余失败一律返回 401
func Auth(resolver service.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			status, resp := authError(err)
			event := log.Warn()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.Err(err).
				Str("path", c.Request.URL.Path).
				Str("request_id", c.GetString(RequestIDKey)).
				Msg("Authentication failed")

			if status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			c.AbortWithStatusJSON(status, resp)
			return
		}

		// 将身份注入到 context
		ctx := ctxutil.WithIdentity(c.Request.Context(), identity)
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", identity.UserID)

		c.Next()
	}
}

// authError 将身份解析错误映射为响应
// 过期与其他校验失败使用不同的错误码，便于客户端刷新 Token；不回显内部错误信息
func authError(err error) (int, *httputil.ErrorResponse) {
	switch {
	case errors.Is(err, jwt.ErrKeyFetch):
		return http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeKeyFetch, "Failed to fetch public key")
	case errors.Is(err, jwt.ErrMissingToken):
		return http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "Missing authorization header")
	case errors.Is(err, jwt.ErrMalformedHeader):
		return http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "Invalid authorization header")
	case errors.Is(err, jwt.ErrExpiredToken):
		return http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeTokenExpired, "Token has expired")
	case errors.Is(err, jwt.ErrNoIdentity):
		return http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "No email found in token")
	default:
		return http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "Invalid token")
	}
}
