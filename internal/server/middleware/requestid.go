package middleware

import (
	"github.com/gin-gonic/gin"

	"sandbox/internal/pkg/id"
)

const (
	// RequestIDHeader 请求ID header
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey 请求ID在 gin.Context 中的 key
	RequestIDKey = "request_id"
)

// RequestID 请求ID中间件
// 沿用客户端传入的合法 UUID，否则生成新的，并写回响应 header
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !id.IsValid(requestID) {
			requestID = id.New()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
