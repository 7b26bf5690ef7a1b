package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sandbox/internal/pkg/ctxutil"
	"sandbox/internal/service"
)

// Handler 对话模块处理器
// 所有接口都需要经过认证中间件，身份从 context 中读取
type Handler struct {
	chatService service.ChatService
}

// NewHandler 创建对话模块处理器
func NewHandler(chatService service.ChatService) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// userID 读取认证中间件注入的身份，缺失时直接返回 401
func userID(c *gin.Context) (string, bool) {
	uid, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    40101,
			Message: "Missing authorization header",
		})
		return "", false
	}
	return uid, true
}
