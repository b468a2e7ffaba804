package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"reelcast/internal/config"
	"reelcast/internal/handler"
	renderHandler "reelcast/internal/handler/render"
	"reelcast/internal/pkg/cache"
	"reelcast/internal/pkg/mongodb"
	"reelcast/internal/pkg/storagefactory"
	renderRepo "reelcast/internal/repository/render"
	"reelcast/internal/server/middleware"
	"reelcast/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	mongo     *mongodb.Client
	redis     *cache.RedisCache
	renderSvc service.RenderService
}

// New 创建服务器实例
// MongoDB 和 Redis 不可用时服务仍然启动，提交接口返回 503
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

	engine := gin.New()

	// 初始化 MongoDB (可选)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	srv.renderSvc = srv.newRenderService()

	srv.setupRoutes()

	return srv, nil
}

// newRenderService 组装渲染服务
// API 进程只提交和查询任务，不持有流水线，渲染由 worker 执行
// 发布存储只用于给查询结果签发下载地址
func (s *Server) newRenderService() service.RenderService {
	var (
		repo  renderRepo.RenderRepository
		queue service.JobQueue
	)
	if s.mongo != nil {
		repo = renderRepo.NewRenderRepo(s.mongo.Database())
	} else {
		log.Warn().Msg("MongoDB not configured, render endpoints disabled")
	}
	if s.redis != nil {
		queue = s.redis
	} else {
		log.Warn().Msg("Redis not configured, render submission disabled")
	}

	store, err := storagefactory.NewStorage(context.Background(), &s.cfg.Storage)
	if err != nil {
		log.Warn().Err(err).Msg("failed to init storage, download urls disabled")
		store = nil
	}

	return service.NewRenderService(repo, nil, queue, s.cfg.Worker.Queue, store, s.cfg.Render.OutputDir)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	deps := make(map[string]handler.Pinger)
	if s.mongo != nil {
		deps["mongo"] = s.mongo
	}
	if s.redis != nil {
		deps["redis"] = s.redis
	}
	healthHandler := handler.NewHealthHandler(deps)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		renderHdl := renderHandler.NewHandler(s.renderSvc)
		v1.POST("/renders", renderHdl.SubmitRender)
		v1.GET("/renders/:render_id", renderHdl.GetRender)
		v1.GET("/queue", renderHdl.GetQueue)
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

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
