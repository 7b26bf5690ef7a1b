package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"sandbox/internal/model/chat"
)

// EnsureIndexes 创建所有模型的索引
// 在应用启动或执行 indexes 子命令时调用，索引已存在时为无操作
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	models := []Model{
		&chat.Chat{},
		&chat.Message{},
		&chat.ToolCall{},
	}
	return EnsureAllIndexes(ctx, db, models...)
}
