package id

import (
	"github.com/google/uuid"
)

// New 生成新的ID（UUID v4 字符串）
// 用于请求ID；对话、消息、工具调用的ID由客户端生成
func New() string {
	return uuid.NewString()
}

// IsValid 是否为合法的 UUID
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
