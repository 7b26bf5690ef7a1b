package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sandbox/internal/service"
)

// DeleteChat 删除对话
// @Summary      删除对话
// @Description  删除对话及其全部消息和工具调用
// @Tags         对话
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "对话ID"
// @Success      200  {object}  SuccessResponse
// @Failure      401  {object}  ErrorResponse  "未认证"
// @Failure      403  {object}  ErrorResponse  "对话属于其他用户"
// @Failure      404  {object}  ErrorResponse  "对话不存在"
// @Failure      500  {object}  ErrorResponse  "服务器内部错误"
// @Router       /chats/{id} [delete]
func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	chatID := c.Param("id")
	err := h.chatService.Delete(c.Request.Context(), uid, chatID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, SuccessResponse{Success: true})
	case errors.Is(err, service.ErrChatNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    40401,
			Message: "Chat not found",
		})
	case errors.Is(err, service.ErrChatForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    40301,
			Message: "Forbidden",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to delete chat.",
		})
	}
}
