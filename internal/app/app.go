package app

import (
	"context"
	"fmt"
	"time"

	"github.com/arnavshah/ward-census-api/internal/config"
	"github.com/arnavshah/ward-census-api/pkg/auth"
	"github.com/arnavshah/ward-census-api/pkg/cache"
	"github.com/arnavshah/ward-census-api/pkg/dashboard"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/handlers"
	"github.com/arnavshah/ward-census-api/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App bundles the wired components shared by the server, the serverless
// entry and the CLI
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Store   *store.GormStore
	Service *dashboard.Service
	Auth    *auth.Authenticator

	redis *redis.Client
}

// New opens the database, connects the optional cache and builds the service
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.InitDB(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		DataPath:    cfg.DataPath,
	})
	if err != nil {
		return nil, err
	}
	return NewWithDB(ctx, cfg, logger, db)
}

// NewWithDB wires an App over an already migrated database
func NewWithDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Store:  store.NewGormStore(db, logger.Named("store")),
		Auth:   auth.New(cfg.JWTSecret, cfg.APIMasterSecret),
	}

	opts := dashboard.Options{CacheTTL: cfg.CacheTTL, MaxRangeDays: cfg.MaxRangeDays}
	if cfg.RedisAddr != "" {
		a.redis = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		kv := cache.NewRedisKVStore(a.redis)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := kv.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Redis unreachable, serving views uncached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			opts.Cache = kv
			logger.Info("View cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
		}
	}
	a.Service = dashboard.NewService(a.Store, logger.Named("dashboard"), opts)
	a.Store.OnChange(a.Service.Invalidate)

	if err := auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ensure admin user: %w", err)
	}
	return a, nil
}

// Handler builds the HTTP handler set
func (a *App) Handler() *handlers.Handler {
	return &handlers.Handler{
		DB:      a.DB,
		Store:   a.Store,
		Service: a.Service,
		Auth:    a.Auth,
		Logger:  a.Logger.Named("http"),
	}
}

// Router builds a gin engine with every route registered
func (a *App) Router() *gin.Engine {
	h := a.Handler()
	r := gin.New()
	r.Use(gin.Recovery(), h.RequestLogger())
	handlers.Register(r, h)
	return r
}

// Close releases the database and cache connections
func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
