package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"sandbox/internal/model/chat"
	"sandbox/internal/pkg/cache"
	chatRepo "sandbox/internal/repository/chat"
)

var (
	ErrChatNotFound  = errors.New("对话不存在")
	ErrChatForbidden = errors.New("无权访问该对话")
	ErrPersistence   = errors.New("对话存储失败")
)

// ChatRepository 对话数据访问接口（MongoRepo / MemoryRepo）
type ChatRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*chat.Chat, error)
	Upsert(ctx context.Context, userID string, chats []*chat.Chat) error
	Delete(ctx context.Context, userID, chatID string) error
}

// ListCache 对话列表缓存（*cache.RedisCache）
type ListCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// ChatService 对话服务接口
// 所有操作都限定在调用方身份（userID）范围内
type ChatService interface {
	// List 返回用户的全部对话，按最近更新时间倒序
	List(ctx context.Context, userID string) ([]*chat.Chat, error)

	// Save 批量写入对话（不存在则创建，存在则覆盖），整批原子提交
	Save(ctx context.Context, userID string, chats []*chat.Chat) error

	// Delete 删除对话及其消息、工具调用
	Delete(ctx context.Context, userID, chatID string) error
}

type chatService struct {
	repo    ChatRepository
	cache   ListCache
	listTTL time.Duration
}

// NewChatService 创建对话服务
// listCache 为 nil 时不使用缓存
func NewChatService(repo ChatRepository, listCache ListCache, listTTL time.Duration) ChatService {
	if listTTL <= 0 {
		listTTL = cache.ChatListCacheTTL
	}
	return &chatService{
		repo:    repo,
		cache:   listCache,
		listTTL: listTTL,
	}
}

// List 查询对话列表
func (s *chatService) List(ctx context.Context, userID string) ([]*chat.Chat, error) {
	var key string
	if s.cache != nil {
		// 代数必须在查库之前读取
		gen, err := s.cache.Counter(ctx, cache.ChatListGenerationKey(userID))
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read chat list generation")
		} else {
			key = cache.ChatListCacheKey(userID, gen)
			var cached []*chat.Chat
			err := s.cache.Get(ctx, key, &cached)
			if err == nil {
				return cached, nil
			}
			if !cache.IsMiss(err) {
				log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read chat list cache")
			}
		}
	}

	chats, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list chats")
		return nil, ErrPersistence
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, chats, s.listTTL); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to write chat list cache")
		}
	}
	return chats, nil
}

// Save 批量写入对话
func (s *chatService) Save(ctx context.Context, userID string, chats []*chat.Chat) error {
	for _, c := range chats {
		normalize(c)
	}

	if err := s.repo.Upsert(ctx, userID, chats); err != nil {
		logger := log.With().Str("user_id", userID).Int("chats", len(chats)).Logger()
		if errors.Is(err, chatRepo.ErrForbidden) {
			logger.Warn().Msg("Rejected upsert of chat owned by another user")
			return ErrChatForbidden
		}
		logger.Error().Err(err).Msg("Failed to save chats")
		return ErrPersistence
	}

	s.invalidate(ctx, userID)
	return nil
}

// Delete 删除对话
func (s *chatService) Delete(ctx context.Context, userID, chatID string) error {
	err := s.repo.Delete(ctx, userID, chatID)
	switch {
	case err == nil:
		s.invalidate(ctx, userID)
		return nil
	case errors.Is(err, chatRepo.ErrChatNotFound):
		return ErrChatNotFound
	case errors.Is(err, chatRepo.ErrForbidden):
		log.Warn().Str("user_id", userID).Str("chat_id", chatID).Msg("Rejected delete of chat owned by another user")
		return ErrChatForbidden
	default:
		log.Error().Err(err).Str("user_id", userID).Str("chat_id", chatID).Msg("Failed to delete chat")
		return ErrPersistence
	}
}

func (s *chatService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(context.WithoutCancel(ctx), cache.ChatListGenerationKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate chat list cache")
	}
}

// normalize 填充默认标题，并按提交顺序设置 position
func normalize(c *chat.Chat) {
	if c.Title == "" {
		c.Title = chat.DefaultTitle
	}
	for i, m := range c.Messages {
		m.Position = i
		for j, tc := range m.ToolCalls {
			tc.Position = j
		}
	}
}
