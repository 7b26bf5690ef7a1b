package chat

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"sandbox/internal/model/chat"
	httputil "sandbox/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// ToolCallInfo 工具调用 DTO（请求与响应共用）
type ToolCallInfo struct {
	ID   string        `json:"id" binding:"required"`   // 工具调用ID（全局唯一）
	Name string        `json:"name"`                    // 工具名
	Args chat.Metadata `json:"args" binding:"required"` // 调用参数（JSON 对象）
}

// MessageInfo 消息 DTO（请求与响应共用）
type MessageInfo struct {
	ID               string           `json:"id" binding:"required"`                              // 消息ID（全局唯一）
	Type             chat.MessageType `json:"type" binding:"required,oneof=human ai tool system"` // 消息类型
	Content          string           `json:"content"`                                            // 文本内容
	Name             *string          `json:"name"`                                               // 可选名称
	ToolCallID       *string          `json:"tool_call_id"`                                       // 关联的工具调用ID（tool 消息）
	AdditionalKwargs chat.Metadata    `json:"additional_kwargs"`                                  // 透传元数据
	ToolCalls        []ToolCallInfo   `json:"tool_calls" binding:"dive"`                          // 工具调用
}

// ChatInfo 对话 DTO
type ChatInfo struct {
	Title    string        `json:"title"`                   // 标题（为空时使用默认标题）
	Messages []MessageInfo `json:"messages" binding:"dive"` // 按顺序排列的消息
}

// ChatMap 以对话ID为键的有序映射，保持对话的顺序
type ChatMap = orderedmap.OrderedMap[string, ChatInfo]

// toChatInfo 将 Chat 实体转换为 DTO
func toChatInfo(c *chat.Chat) ChatInfo {
	info := ChatInfo{
		Title:    c.Title,
		Messages: make([]MessageInfo, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		msg := MessageInfo{
			ID:               m.ID,
			Type:             m.Type,
			Content:          m.Content,
			Name:             m.Name,
			ToolCallID:       m.ToolCallID,
			AdditionalKwargs: m.AdditionalKwargs,
			ToolCalls:        make([]ToolCallInfo, 0, len(m.ToolCalls)),
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCallInfo{
				ID:   tc.ID,
				Name: tc.Name,
				Args: tc.Args,
			})
		}
		info.Messages = append(info.Messages, msg)
	}
	return info
}

// toChat 将请求 DTO 转换为 Chat 实体
func toChat(id string, info ChatInfo) *chat.Chat {
	c := &chat.Chat{
		ID:       id,
		Title:    info.Title,
		Messages: make([]*chat.Message, 0, len(info.Messages)),
	}
	for _, m := range info.Messages {
		msg := &chat.Message{
			ID:               m.ID,
			Type:             m.Type,
			Content:          m.Content,
			Name:             m.Name,
			ToolCallID:       m.ToolCallID,
			AdditionalKwargs: m.AdditionalKwargs,
			ToolCalls:        make([]*chat.ToolCall, 0, len(m.ToolCalls)),
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, &chat.ToolCall{
				ID:   tc.ID,
				Name: tc.Name,
				Args: tc.Args,
			})
		}
		c.Messages = append(c.Messages, msg)
	}
	return c
}
