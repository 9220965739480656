package handler

import (
	"context"
	"net/http"

	"github.com/arnavshah/ward-census-api/internal/app"
	"github.com/arnavshah/ward-census-api/internal/config"
	"github.com/arnavshah/ward-census-api/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var r *gin.Engine

func init() {
	cfg := config.Load()
	gin.SetMode(gin.ReleaseMode)

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ward-census-api")
	if err != nil {
		log = zap.NewNop()
	}

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialise", zap.Error(err))
		r = gin.New()
		r.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		})
		return
	}
	r = a.Router()
}

// Handler is the entry point for the Vercel Go runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
