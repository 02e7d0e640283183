package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/api/middleware"
	"github.com/Tchindavaldo/yuunna-backend/internal/catalog"
	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/fallback"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/normalize"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/jobqueue"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/ratelimit"
	"github.com/Tchindavaldo/yuunna-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Pager 按游标分页读取搜索结果。
type Pager interface {
	Page(ctx context.Context, keyword string, cursor, limit int) (catalog.Page, error)
}

// Normalizer 批量归一化。
type Normalizer interface {
	NormalizeAll(ctx context.Context, records []model.ListingRecord, opts normalize.Options) []model.Product
}

// ProductReader 读取已入库商品。
type ProductReader interface {
	Get(ctx context.Context, id string) (*model.Product, error)
	Query(ctx context.Context, f store.Filter, limit int, startAfterID string) (store.QueryResult, error)
}

// JobQueue 导入任务入队。
type JobQueue interface {
	Push(ctx context.Context, job *model.ImportJob) error
}

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、搜索缓存、分页器以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	cache      *catalog.SearchCache
	pager      Pager
	normalizer Normalizer
	products   ProductReader
	jobs       JobQueue
	validate   *validator.Validate
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 组装抓取链、搜索缓存、分页器与归一化器
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	jobs, err := jobqueue.New(rdb)
	if err != nil {
		return nil, err
	}

	metrics.InitMetrics(cfg.App.WorkerPoolSize)

	limiter := ratelimit.New(rdb, logger, cfg.App.RateLimit, int(cfg.App.RateBurst))
	scraper := crawler.NewService(cfg.Browser, limiter, logger)
	chain := crawler.NewChain(scraper, fallback.NewProvider(cfg.Fallback, logger), logger)

	cache := catalog.NewSearchCache(cfg.Cache.TTL, cfg.Cache.SweepInterval, logger)
	translator := normalize.NewTranslator(cfg.Translate, logger)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		cache:      cache,
		pager:      catalog.NewPaginator(cache, chain, logger),
		normalizer: normalize.NewNormalizer(translator, cfg.App.WorkerPoolSize, logger),
		products:   store.New(db),
		jobs:       jobs,
		validate:   validator.New(),
	}
	s.router = s.newRouter()
	return s, nil
}

// newRouter 创建 Gin 引擎并注册路由。
func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger))
	s.registerRoutes(r)
	return r
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动搜索缓存的后台清理。
func (s *Server) Start(ctx context.Context) {
	if s.cache != nil {
		s.cache.Start(ctx)
	}
}

// Close 停止缓存清理并关闭数据库与缓存连接。
func (s *Server) Close() error {
	if s.cache != nil {
		s.cache.Stop()
	}
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)

	r.GET("/taobao-products", s.handleTaobaoProducts)
	r.POST("/taobao-products/import", s.handleImport)

	r.GET("/products", s.handleListProducts)
	r.GET("/products/:id", s.handleGetProduct)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "cached_keywords": s.cache.Len()})
}
