package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sandbox/internal/config"
)

// RedisCache Redis 缓存封装
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建 Redis 缓存客户端
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// Set 设置缓存
func (c *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存，key 不存在时返回 redis.Nil（可用 IsMiss 判断）
func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Counter 读取计数器，key 不存在时返回 0
func (c *RedisCache) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if IsMiss(err) {
		return 0, nil
	}
	return n, err
}

// Incr 计数器加一，返回新值
func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// IsMiss 是否为缓存未命中
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// 常用 key 模式
// 对话列表按代数缓存：写入成功后递增代数，旧代数的列表不再被读取，随 TTL 过期。
// 读取时先取代数再查库，查库期间发生的写入会让这次回填落到旧代数上。
const (
	ChatListCacheKeyPrefix      = "chats:list:"
	ChatListGenerationKeyPrefix = "chats:gen:"
	ChatListCacheTTL            = 5 * time.Minute
)

// ChatListCacheKey 生成用户对话列表缓存 key（代数在前，用户ID可包含冒号）
func ChatListCacheKey(userID string, generation int64) string {
	return ChatListCacheKeyPrefix + strconv.FormatInt(generation, 10) + ":" + userID
}

// ChatListGenerationKey 生成用户对话列表代数 key
func ChatListGenerationKey(userID string) string {
	return ChatListGenerationKeyPrefix + userID
}
