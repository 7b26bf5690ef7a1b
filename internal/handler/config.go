package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConfigResponse 前端运行时配置
type ConfigResponse struct {
	ServiceURL string `json:"serviceUrl"` // 后端服务地址
}

// ConfigHandler 前端配置处理器
type ConfigHandler struct {
	serviceURL string
}

// NewConfigHandler 创建前端配置处理器
func NewConfigHandler(serviceURL string) *ConfigHandler {
	return &ConfigHandler{serviceURL: serviceURL}
}

// Config 返回前端运行时配置
// @Summary      前端配置
// @Description  返回前端访问后端所需的配置，无需认证
// @Tags         系统
// @Produce      json
// @Success      200  {object}  ConfigResponse
// @Router       /config [get]
func (h *ConfigHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResponse{ServiceURL: h.serviceURL})
}
