package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultTitle 标题为空时使用的默认标题
const DefaultTitle = "Untitled Chat"

// MessageType 消息类型
type MessageType string

const (
	MessageTypeHuman  MessageType = "human"  // 用户
	MessageTypeAI     MessageType = "ai"     // 模型
	MessageTypeTool   MessageType = "tool"   // 工具结果
	MessageTypeSystem MessageType = "system" // 系统提示
)

// Valid 是否为已知类型
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeHuman, MessageTypeAI, MessageTypeTool, MessageTypeSystem:
		return true
	}
	return false
}

// Chat 对话实体
// 三级结构：Chat -> Message -> ToolCall，分别存放在三个集合中，通过父ID关联。
// ID 由客户端生成，全局唯一。
type Chat struct {
	ID        string    `bson:"_id" json:"id"`                // 对话ID
	Title     string    `bson:"title" json:"title"`           // 标题
	UserID    string    `bson:"user_id" json:"user_id"`       // 归属用户（email 或 preferred_username）
	CreatedAt time.Time `bson:"created_at" json:"created_at"` // 创建时间
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"` // 更新时间（自身或子节点写入时刷新）

	Messages []*Message `bson:"-" json:"messages"` // 按 position 排序
}

// Message 消息实体
type Message struct {
	ID               string      `bson:"_id" json:"id"`                              // 消息ID（全局唯一）
	ChatID           string      `bson:"chat_id" json:"chat_id"`                     // 所属对话
	Position         int         `bson:"position" json:"position"`                   // 在对话中的顺序
	Type             MessageType `bson:"type" json:"type"`                           // 消息类型
	Content          string      `bson:"content" json:"content"`                     // 文本内容
	Name             *string     `bson:"name" json:"name,omitempty"`                 // 可选名称
	ToolCallID       *string     `bson:"tool_call_id" json:"tool_call_id,omitempty"` // 工具结果关联的 tool call（仅 tool 消息）
	AdditionalKwargs Metadata    `bson:"additional_kwargs" json:"additional_kwargs"` // 透传元数据
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`               // 创建时间
	UpdatedAt        time.Time   `bson:"updated_at" json:"updated_at"`               // 更新时间

	ToolCalls []*ToolCall `bson:"-" json:"tool_calls"`
}

// ToolCall 工具调用实体
type ToolCall struct {
	ID        string    `bson:"_id" json:"id"`                // 工具调用ID（全局唯一，不按消息划分）
	MessageID string    `bson:"message_id" json:"message_id"` // 所属消息
	Position  int       `bson:"position" json:"position"`     // 在消息中的顺序
	Name      string    `bson:"name" json:"name"`             // 工具名
	Args      Metadata  `bson:"args" json:"args"`             // 调用参数
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Collection 返回集合名称
func (c *Chat) Collection() string {
	return "chats"
}

// EnsureIndexes 创建和维护索引
func (c *Chat) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(c.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_user_updated"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection 返回集合名称
func (m *Message) Collection() string {
	return "messages"
}

// EnsureIndexes 创建和维护索引
func (m *Message) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(m.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "chat_id", Value: 1}, bson.E{Key: "position", Value: 1}},
			Options: options.Index().SetName("idx_chat_position"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection 返回集合名称
func (t *ToolCall) Collection() string {
	return "tool_calls"
}

// EnsureIndexes 创建和维护索引
func (t *ToolCall) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(t.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "message_id", Value: 1}, bson.E{Key: "position", Value: 1}},
			Options: options.Index().SetName("idx_message_position"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
