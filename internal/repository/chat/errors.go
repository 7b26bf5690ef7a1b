package chat

import (
	"errors"
	"time"
)

var (
	// ErrChatNotFound 对话不存在
	ErrChatNotFound = errors.New("chat not found")
	// ErrForbidden 对话（或其中的消息、工具调用）属于其他用户
	ErrForbidden = errors.New("chat belongs to another user")
)

// nowFunc 仓库统一的时间戳来源，精确到毫秒与 MongoDB 存储精度一致
func nowFunc() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// later 返回较晚的时间，保证 updated_at 单调不减
func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
