package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"sandbox/internal/model/chat"
	"sandbox/internal/service"
)

// SaveChatsRequest 批量保存对话请求
type SaveChatsRequest struct {
	Chats *ChatMap `json:"chats" binding:"required"` // 对话ID -> 对话
}

// SuccessResponse 写操作成功响应
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SaveChats 批量保存对话
// @Summary      保存对话
// @Description  按ID批量写入对话、消息和工具调用（不存在则创建，存在则覆盖），整批在一个事务内提交
// @Tags         对话
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SaveChatsRequest  true  "对话数据"
// @Success      200      {object}  SuccessResponse
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      401      {object}  ErrorResponse  "未认证"
// @Failure      403      {object}  ErrorResponse  "对话属于其他用户"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /chats [post]
func (h *Handler) SaveChats(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req SaveChatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	// 有序映射内的值不会被自动校验，逐个校验
	chats := make([]*chat.Chat, 0, req.Chats.Len())
	for pair := req.Chats.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    40001,
				Message: "Invalid request body",
				Detail:  "chat id must not be empty",
			})
			return
		}
		if err := binding.Validator.ValidateStruct(pair.Value); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    40001,
				Message: "Invalid request body",
				Detail:  err.Error(),
			})
			return
		}
		chats = append(chats, toChat(pair.Key, pair.Value))
	}

	if err := h.chatService.Save(c.Request.Context(), uid, chats); err != nil {
		if errors.Is(err, service.ErrChatForbidden) {
			c.JSON(http.StatusForbidden, ErrorResponse{
				Code:    40301,
				Message: "Forbidden",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to save chats.",
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
