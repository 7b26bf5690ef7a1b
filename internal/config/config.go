package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
	CORS   CORSConfig   `mapstructure:"cors"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 优雅关闭等待进行中请求的最长时间
	ServiceURL      string        `mapstructure:"service_url"`      // 前端访问后端的地址（GET /config 返回）
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
// 对话写入使用多文档事务，MongoDB 需要以副本集方式部署
type MongoConfig struct {
	URI         string        `mapstructure:"uri"`
	Database    string        `mapstructure:"database"`
	MaxPoolSize uint64        `mapstructure:"max_pool_size"`
	MinPoolSize uint64        `mapstructure:"min_pool_size"`
	Timeout     time.Duration `mapstructure:"timeout"` // 单次仓库操作超时
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	ListTTL  time.Duration `mapstructure:"list_ttl"` // 对话列表缓存时间
}

// AuthConfig 认证配置（Keycloak）
type AuthConfig struct {
	Disabled           bool          `mapstructure:"disabled"`             // 关闭认证，所有请求使用匿名身份
	KeycloakURL        string        `mapstructure:"keycloak_url"`         // 获取 realm 公钥的地址
	IssuerURL          string        `mapstructure:"issuer_url"`           // Token iss 校验地址（为空时使用 keycloak_url）
	Realm              string        `mapstructure:"realm"`                // Keycloak realm
	ClientID           string        `mapstructure:"client_id"`            // 前端 client id（azp 校验）
	Audience           string        `mapstructure:"audience"`             // aud 校验
	KeyCacheTTL        time.Duration `mapstructure:"key_cache_ttl"`        // 公钥缓存时间
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`        // 公钥获取超时
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"` // 获取公钥时跳过 TLS 校验（仅测试环境）
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Issuer 返回 Token 中期望的 iss
func (a AuthConfig) Issuer() string {
	base := a.IssuerURL
	if base == "" {
		base = a.KeycloakURL
	}
	return base + "/realms/" + a.Realm
}

// RealmURL 返回 realm 发现文档地址
func (a AuthConfig) RealmURL() string {
	return a.KeycloakURL + "/realms/" + a.Realm
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if !c.Auth.Disabled {
		if c.Auth.KeycloakURL == "" {
			return errors.New("auth.keycloak_url is required when auth is enabled")
		}
		if c.Auth.Realm == "" {
			return errors.New("auth.realm is required when auth is enabled")
		}
		if c.Auth.ClientID == "" {
			return errors.New("auth.client_id is required when auth is enabled")
		}
		if c.Auth.KeyCacheTTL <= 0 {
			return errors.New("auth.key_cache_ttl must be positive")
		}
	}

	return nil
}
