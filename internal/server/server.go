package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sandbox/internal/config"
	"sandbox/internal/handler"
	chatHandler "sandbox/internal/handler/chat"
	"sandbox/internal/pkg/cache"
	"sandbox/internal/pkg/jwt"
	"sandbox/internal/pkg/mongodb"
	chatRepo "sandbox/internal/repository/chat"
	"sandbox/internal/server/middleware"
	"sandbox/internal/service"
)

// defaultShutdownTimeout 未配置时优雅关闭的最长等待时间
const defaultShutdownTimeout = 10 * time.Second

// Server HTTP 服务器
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	mongo    *mongodb.Client
	redis    *cache.RedisCache
	resolver service.IdentityResolver
	chatSvc  service.ChatService
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB
	// 未配置时使用内存存储；配置了但连接失败时直接返回错误，避免数据写入内存后丢失
	var (
		mongoClient *mongodb.Client
		repo        service.ChatRepository
	)
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		mongoClient = client
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

		// 创建索引
		if err := mongodb.EnsureIndexes(context.Background(), mongoClient.Database()); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
		repo = chatRepo.NewMongoRepo(mongoClient)
	} else {
		log.Warn().Msg("MongoDB not configured, chats are kept in memory and lost on restart")
		repo = chatRepo.NewMemoryRepo()
	}

	// 初始化 Redis (可选)
	var (
		redisCache *cache.RedisCache
		listCache  service.ListCache
	)
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			listCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:      cfg,
		engine:   engine,
		mongo:    mongoClient,
		redis:    redisCache,
		resolver: newIdentityResolver(&cfg.Auth),
		chatSvc:  service.NewChatService(repo, listCache, cfg.Redis.ListTTL),
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// newIdentityResolver 根据认证配置创建身份解析器
func newIdentityResolver(cfg *config.AuthConfig) service.IdentityResolver {
	if cfg.Disabled {
		return service.NewAnonymousResolver()
	}

	if cfg.InsecureSkipVerify {
		log.Warn().Str("keycloak_url", cfg.KeycloakURL).Msg("TLS verification disabled for public key fetch")
	}
	keys := jwt.NewKeyCache(cfg.RealmURL(), cfg.KeyCacheTTL,
		jwt.WithHTTPClient(jwt.NewHTTPClient(cfg.FetchTimeout, cfg.InsecureSkipVerify)))
	verifier := jwt.NewVerifier(keys, cfg.Issuer(), cfg.Audience, cfg.ClientID)

	log.Info().
		Str("issuer", cfg.Issuer()).
		Str("client_id", cfg.ClientID).
		Dur("key_cache_ttl", cfg.KeyCacheTTL).
		Msg("Keycloak authentication enabled")
	return service.NewTokenResolver(verifier)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS(s.cfg.CORS.AllowedOrigins))

	// 健康检查
	var pinger handler.Pinger
	if s.mongo != nil {
		pinger = s.mongo
	}
	healthHandler := handler.NewHealthHandler(pinger)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// 前端配置（公开）
	configHandler := handler.NewConfigHandler(s.cfg.Server.ServiceURL)
	s.engine.GET("/config", configHandler.Config)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 对话接口（需要认证）
	chatHdl := chatHandler.NewHandler(s.chatSvc)
	chats := s.engine.Group("/chats")
	chats.Use(middleware.Auth(s.resolver))
	{
		chats.GET("", chatHdl.ListChats)
		chats.POST("", chatHdl.SaveChats)
		chats.DELETE("/:id", chatHdl.DeleteChat)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 先停止接收请求，等待进行中的事务结束后再关闭连接，超时后强制退出
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Warn().Err(err).Dur("timeout", timeout).Msg("graceful shutdown timed out, closing remaining connections")
			_ = srv.Close()
		}
		s.close()
		return err
	case err := <-errCh:
		s.close()
		return err
	}
}

func (s *Server) close() {
	if s.mongo != nil {
		if err := s.mongo.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
