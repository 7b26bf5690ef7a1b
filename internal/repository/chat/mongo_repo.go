package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sandbox/internal/model/chat"
	"sandbox/internal/pkg/mongodb"
)

// MongoRepo 基于 MongoDB 的对话仓库
// 每个操作都在单个事务中完成，失败时整体回滚
type MongoRepo struct {
	client    *mongodb.Client
	chats     *mongo.Collection
	messages  *mongo.Collection
	toolCalls *mongo.Collection
	now       func() time.Time
}

// NewMongoRepo 创建对话仓库
func NewMongoRepo(client *mongodb.Client) *MongoRepo {
	var (
		c  chat.Chat
		m  chat.Message
		tc chat.ToolCall
	)
	return &MongoRepo{
		client:    client,
		chats:     client.Collection(c.Collection()),
		messages:  client.Collection(m.Collection()),
		toolCalls: client.Collection(tc.Collection()),
		now:       nowFunc,
	}
}

// ListByUser 查询用户的全部对话（含消息与工具调用），按更新时间倒序
func (r *MongoRepo) ListByUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	var result []*chat.Chat
	err := r.client.RunInTx(ctx, func(sc mongo.SessionContext) error {
		chats, err := r.findChats(sc, userID)
		if err != nil {
			return err
		}
		result = chats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MongoRepo) findChats(ctx context.Context, userID string) ([]*chat.Chat, error) {
	opts := options.Find().SetSort(bson.D{
		bson.E{Key: "updated_at", Value: -1},
		bson.E{Key: "_id", Value: 1},
	})
	cursor, err := r.chats.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	chats := make([]*chat.Chat, 0)
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	if len(chats) == 0 {
		return chats, nil
	}

	chatIDs := make([]string, 0, len(chats))
	byChat := make(map[string]*chat.Chat, len(chats))
	for _, c := range chats {
		c.Messages = make([]*chat.Message, 0)
		chatIDs = append(chatIDs, c.ID)
		byChat[c.ID] = c
	}

	msgOpts := options.Find().SetSort(bson.D{
		bson.E{Key: "chat_id", Value: 1},
		bson.E{Key: "position", Value: 1},
		bson.E{Key: "created_at", Value: 1},
	})
	cursor, err = r.messages.Find(ctx, bson.M{"chat_id": bson.M{"$in": chatIDs}}, msgOpts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	var messages []*chat.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if len(messages) == 0 {
		return chats, nil
	}

	messageIDs := make([]string, 0, len(messages))
	byMessage := make(map[string]*chat.Message, len(messages))
	for _, m := range messages {
		m.ToolCalls = make([]*chat.ToolCall, 0)
		messageIDs = append(messageIDs, m.ID)
		byMessage[m.ID] = m
		if c, ok := byChat[m.ChatID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}

	tcOpts := options.Find().SetSort(bson.D{
		bson.E{Key: "message_id", Value: 1},
		bson.E{Key: "position", Value: 1},
		bson.E{Key: "created_at", Value: 1},
	})
	cursor, err = r.toolCalls.Find(ctx, bson.M{"message_id": bson.M{"$in": messageIDs}}, tcOpts)
	if err != nil {
		return nil, fmt.Errorf("find tool calls: %w", err)
	}
	var toolCalls []*chat.ToolCall
	if err := cursor.All(ctx, &toolCalls); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	for _, tc := range toolCalls {
		if m, ok := byMessage[tc.MessageID]; ok {
			m.ToolCalls = append(m.ToolCalls, tc)
		}
	}

	return chats, nil
}

// Upsert 批量写入对话图（Chat -> Message -> ToolCall）
// 已存在的记录按ID更新，不存在的插入；整个批次在一个事务内提交。
// 已存在的对话属于其他用户，或消息/工具调用挂在其他父节点下时返回 ErrForbidden，批次整体回滚。
func (r *MongoRepo) Upsert(ctx context.Context, userID string, chats []*chat.Chat) error {
	return r.client.RunInTx(ctx, func(sc mongo.SessionContext) error {
		now := r.now()
		for _, c := range chats {
			if err := r.upsertChat(sc, userID, c, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MongoRepo) upsertChat(ctx context.Context, userID string, c *chat.Chat, now time.Time) error {
	var existing chat.Chat
	err := r.chats.FindOne(ctx, bson.M{"_id": c.ID}).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		doc := chat.Chat{
			ID:        c.ID,
			Title:     c.Title,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := r.chats.InsertOne(ctx, &doc); err != nil {
			return fmt.Errorf("insert chat %s: %w", c.ID, err)
		}
	case err != nil:
		return fmt.Errorf("find chat %s: %w", c.ID, err)
	case existing.UserID != userID:
		return ErrForbidden
	default:
		update := bson.M{"$set": bson.M{
			"title":      c.Title,
			"user_id":    userID,
			"updated_at": later(now, existing.UpdatedAt),
		}}
		if _, err := r.chats.UpdateByID(ctx, c.ID, update); err != nil {
			return fmt.Errorf("update chat %s: %w", c.ID, err)
		}
	}

	for _, m := range c.Messages {
		if err := r.upsertMessage(ctx, c.ID, m, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRepo) upsertMessage(ctx context.Context, chatID string, m *chat.Message, now time.Time) error {
	var existing chat.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": m.ID}).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		doc := *m
		doc.ChatID = chatID
		doc.CreatedAt = now
		doc.UpdatedAt = now
		doc.ToolCalls = nil
		if _, err := r.messages.InsertOne(ctx, &doc); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	case err != nil:
		return fmt.Errorf("find message %s: %w", m.ID, err)
	case existing.ChatID != chatID:
		return ErrForbidden
	default:
		update := bson.M{"$set": bson.M{
			"position":          m.Position,
			"type":              m.Type,
			"content":           m.Content,
			"name":              m.Name,
			"tool_call_id":      m.ToolCallID,
			"additional_kwargs": m.AdditionalKwargs,
			"updated_at":        later(now, existing.UpdatedAt),
		}}
		if _, err := r.messages.UpdateByID(ctx, m.ID, update); err != nil {
			return fmt.Errorf("update message %s: %w", m.ID, err)
		}
	}

	for _, tc := range m.ToolCalls {
		if err := r.upsertToolCall(ctx, m.ID, tc, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRepo) upsertToolCall(ctx context.Context, messageID string, tc *chat.ToolCall, now time.Time) error {
	var existing chat.ToolCall
	err := r.toolCalls.FindOne(ctx, bson.M{"_id": tc.ID}).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		doc := *tc
		doc.MessageID = messageID
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := r.toolCalls.InsertOne(ctx, &doc); err != nil {
			return fmt.Errorf("insert tool call %s: %w", tc.ID, err)
		}
	case err != nil:
		return fmt.Errorf("find tool call %s: %w", tc.ID, err)
	case existing.MessageID != messageID:
		return ErrForbidden
	default:
		update := bson.M{"$set": bson.M{
			"position":   tc.Position,
			"name":       tc.Name,
			"args":       tc.Args,
			"updated_at": later(now, existing.UpdatedAt),
		}}
		if _, err := r.toolCalls.UpdateByID(ctx, tc.ID, update); err != nil {
			return fmt.Errorf("update tool call %s: %w", tc.ID, err)
		}
	}
	return nil
}

// Delete 删除对话及其全部消息和工具调用
// 依次删除 tool_calls -> messages -> chat，在同一事务内完成
func (r *MongoRepo) Delete(ctx context.Context, userID, chatID string) error {
	return r.client.RunInTx(ctx, func(sc mongo.SessionContext) error {
		var existing chat.Chat
		err := r.chats.FindOne(sc, bson.M{"_id": chatID}).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrChatNotFound
		}
		if err != nil {
			return fmt.Errorf("find chat %s: %w", chatID, err)
		}
		if existing.UserID != userID {
			return ErrForbidden
		}

		messageIDs, err := r.messages.Distinct(sc, "_id", bson.M{"chat_id": chatID})
		if err != nil {
			return fmt.Errorf("list messages of chat %s: %w", chatID, err)
		}
		if len(messageIDs) > 0 {
			if _, err := r.toolCalls.DeleteMany(sc, bson.M{"message_id": bson.M{"$in": messageIDs}}); err != nil {
				return fmt.Errorf("delete tool calls of chat %s: %w", chatID, err)
			}
		}
		if _, err := r.messages.DeleteMany(sc, bson.M{"chat_id": chatID}); err != nil {
			return fmt.Errorf("delete messages of chat %s: %w", chatID, err)
		}
		if _, err := r.chats.DeleteOne(sc, bson.M{"_id": chatID}); err != nil {
			return fmt.Errorf("delete chat %s: %w", chatID, err)
		}
		return nil
	})
}
