package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultKeyCacheTTL 公钥默认缓存时间
const DefaultKeyCacheTTL = 300 * time.Second

// KeySource 签名公钥来源
type KeySource interface {
	SigningKey(ctx context.Context) (*rsa.PublicKey, error)
}

// KeyCache realm 公钥缓存
// 最多缓存一把公钥；过期或未命中时同步请求 realm 发现文档。
// 获取失败时返回 ErrKeyFetch，不会用过期的公钥兜底，也不会清除已缓存的公钥。
type KeyCache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

// KeyCacheOption KeyCache 可选项
type KeyCacheOption func(*KeyCache)

// WithHTTPClient 指定获取公钥的 HTTP 客户端
func WithHTTPClient(client *http.Client) KeyCacheOption {
	return func(c *KeyCache) {
		c.client = client
	}
}

// WithClock 指定时钟（测试用）
func WithClock(now func() time.Time) KeyCacheOption {
	return func(c *KeyCache) {
		c.now = now
	}
}

// NewKeyCache 创建公钥缓存
// realmURL: {keycloak}/realms/{realm}
func NewKeyCache(realmURL string, ttl time.Duration, opts ...KeyCacheOption) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}
	c := &KeyCache{
		url:    realmURL,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient 创建获取公钥用的 HTTP 客户端
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if insecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // 仅测试环境通过配置开启
		client.Transport = transport
	}
	return client
}

// SigningKey 获取签名公钥
func (c *KeyCache) SigningKey(ctx context.Context) (*rsa.PublicKey, error) {
	if key, ok := c.cached(); ok {
		log.Debug().Msg("using cached public key")
		return key, nil
	}

	// 调用方取消只影响自己；请求本身受 HTTP 客户端超时约束
	ch := c.group.DoChan(c.url, func() (interface{}, error) {
		if key, ok := c.cached(); ok {
			return key, nil
		}
		return c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rsa.PublicKey), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, ctx.Err())
	}
}

func (c *KeyCache) cached() (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.key != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.key, true
	}
	return nil, false
}

// realmDocument realm 发现文档（只关心 public_key）
type realmDocument struct {
	PublicKey string `json:"public_key"`
}

func (c *KeyCache) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	fetchedAt := c.now()
	log.Debug().Str("url", c.url).Msg("fetching public key")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", c.url).Msg("failed to fetch public key")
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Error().Int("status", resp.StatusCode).Str("url", c.url).Msg("failed to fetch public key")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeyFetch, resp.StatusCode)
	}

	var doc realmDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode realm document: %v", ErrKeyFetch, err)
	}
	if doc.PublicKey == "" {
		return nil, fmt.Errorf("%w: realm document has no public_key", ErrKeyFetch)
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(PEMEnvelope(doc.PublicKey)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrKeyFetch, err)
	}

	c.mu.Lock()
	c.key = key
	c.fetchedAt = fetchedAt
	c.mu.Unlock()

	log.Info().Str("url", c.url).Msg("successfully retrieved new public key")
	return key, nil
}

// PEMEnvelope 将 realm 返回的裸公钥包装为 PEM 格式
func PEMEnvelope(raw string) string {
	return "-----BEGIN PUBLIC KEY-----\n" + raw + "\n-----END PUBLIC KEY-----"
}
