package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ListChatsResponse 对话列表响应
type ListChatsResponse struct {
	Chats *ChatMap `json:"chats"` // 对话ID -> 对话，按最近更新时间倒序
}

// ListChats 查询当前用户的全部对话
// @Summary      查询对话列表
// @Description  返回当前用户的全部对话（含消息和工具调用），按最近更新时间倒序
// @Tags         对话
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ListChatsResponse
// @Failure      401  {object}  ErrorResponse  "未认证"
// @Failure      500  {object}  ErrorResponse  "服务器内部错误"
// @Router       /chats [get]
func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	chats, err := h.chatService.List(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to load chats.",
		})
		return
	}

	resp := ListChatsResponse{Chats: orderedmap.New[string, ChatInfo]()}
	for _, ch := range chats {
		resp.Chats.Set(ch.ID, toChatInfo(ch))
	}
	c.JSON(http.StatusOK, resp)
}
