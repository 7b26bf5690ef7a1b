package chat

import (
	"bytes"
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"sandbox/internal/model/chat"
)

// MemoryRepo 内存对话仓库
// 未配置 MongoDB 时使用（本地开发、测试）。写操作在副本上执行，成功后整体替换，
// 保证与 MongoRepo 相同的原子语义。
type MemoryRepo struct {
	mu        sync.RWMutex
	chats     map[string]chat.Chat
	messages  map[string]chat.Message
	toolCalls map[string]chat.ToolCall
	now       func() time.Time
}

// NewMemoryRepo 创建内存对话仓库
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		chats:     make(map[string]chat.Chat),
		messages:  make(map[string]chat.Message),
		toolCalls: make(map[string]chat.ToolCall),
		now:       nowFunc,
	}
}

// ListByUser 查询用户的全部对话（含消息与工具调用），按更新时间倒序
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*chat.Chat, 0)
	byChat := make(map[string]*chat.Chat)
	for _, c := range r.chats {
		if c.UserID != userID {
			continue
		}
		cp := c
		cp.Messages = make([]*chat.Message, 0)
		result = append(result, &cp)
		byChat[cp.ID] = &cp
	}

	byMessage := make(map[string]*chat.Message)
	for _, m := range r.messages {
		c, ok := byChat[m.ChatID]
		if !ok {
			continue
		}
		cp := m
		cp.AdditionalKwargs = cloneMetadata(m.AdditionalKwargs)
		cp.ToolCalls = make([]*chat.ToolCall, 0)
		c.Messages = append(c.Messages, &cp)
		byMessage[cp.ID] = &cp
	}

	for _, tc := range r.toolCalls {
		m, ok := byMessage[tc.MessageID]
		if !ok {
			continue
		}
		cp := tc
		cp.Args = cloneMetadata(tc.Args)
		m.ToolCalls = append(m.ToolCalls, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	for _, c := range result {
		sort.Slice(c.Messages, func(i, j int) bool {
			a, b := c.Messages[i], c.Messages[j]
			if a.Position != b.Position {
				return a.Position < b.Position
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
		for _, m := range c.Messages {
			sort.Slice(m.ToolCalls, func(i, j int) bool {
				a, b := m.ToolCalls[i], m.ToolCalls[j]
				if a.Position != b.Position {
					return a.Position < b.Position
				}
				return a.CreatedAt.Before(b.CreatedAt)
			})
		}
	}

	return result, nil
}

// Upsert 批量写入对话图，语义同 MongoRepo.Upsert
func (r *MemoryRepo) Upsert(ctx context.Context, userID string, chats []*chat.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := memoryTx{
		chats:     maps.Clone(r.chats),
		messages:  maps.Clone(r.messages),
		toolCalls: maps.Clone(r.toolCalls),
		now:       r.now(),
	}
	for _, c := range chats {
		if err := tx.upsertChat(userID, c); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	r.chats, r.messages, r.toolCalls = tx.chats, tx.messages, tx.toolCalls
	return nil
}

// Delete 删除对话及其全部消息和工具调用
func (r *MemoryRepo) Delete(ctx context.Context, userID, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	existing, ok := r.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	if existing.UserID != userID {
		return ErrForbidden
	}

	for id, m := range r.messages {
		if m.ChatID != chatID {
			continue
		}
		for tcID, tc := range r.toolCalls {
			if tc.MessageID == id {
				delete(r.toolCalls, tcID)
			}
		}
		delete(r.messages, id)
	}
	delete(r.chats, chatID)
	return nil
}

// memoryTx 一次 Upsert 使用的数据副本
type memoryTx struct {
	chats     map[string]chat.Chat
	messages  map[string]chat.Message
	toolCalls map[string]chat.ToolCall
	now       time.Time
}

func (tx *memoryTx) upsertChat(userID string, c *chat.Chat) error {
	doc := chat.Chat{
		ID:        c.ID,
		Title:     c.Title,
		UserID:    userID,
		CreatedAt: tx.now,
		UpdatedAt: tx.now,
	}
	if existing, ok := tx.chats[c.ID]; ok {
		if existing.UserID != userID {
			return ErrForbidden
		}
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = later(tx.now, existing.UpdatedAt)
	}
	tx.chats[c.ID] = doc

	for _, m := range c.Messages {
		if err := tx.upsertMessage(c.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryTx) upsertMessage(chatID string, m *chat.Message) error {
	doc := *m
	doc.ChatID = chatID
	doc.AdditionalKwargs = cloneMetadata(m.AdditionalKwargs)
	doc.ToolCalls = nil
	doc.CreatedAt = tx.now
	doc.UpdatedAt = tx.now
	if existing, ok := tx.messages[m.ID]; ok {
		if existing.ChatID != chatID {
			return ErrForbidden
		}
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = later(tx.now, existing.UpdatedAt)
	}
	tx.messages[m.ID] = doc

	for _, tc := range m.ToolCalls {
		if err := tx.upsertToolCall(m.ID, tc); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryTx) upsertToolCall(messageID string, tc *chat.ToolCall) error {
	doc := *tc
	doc.MessageID = messageID
	doc.Args = cloneMetadata(tc.Args)
	doc.CreatedAt = tx.now
	doc.UpdatedAt = tx.now
	if existing, ok := tx.toolCalls[tc.ID]; ok {
		if existing.MessageID != messageID {
			return ErrForbidden
		}
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = later(tx.now, existing.UpdatedAt)
	}
	tx.toolCalls[tc.ID] = doc
	return nil
}

func cloneMetadata(m chat.Metadata) chat.Metadata {
	if m.IsNull() {
		return nil
	}
	return bytes.Clone(m)
}
