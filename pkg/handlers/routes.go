package handlers

import (
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/gin-gonic/gin"
)

// Register mounts every route on r
func Register(r *gin.Engine, h *Handler) {
	r.GET("/", h.Banner)
	r.POST("/auth/login", h.Login)

	api := r.Group("/api")
	api.Use(h.AuthMiddleware())
	{
		api.GET("/wards", h.ListWards)
		api.GET("/summary", h.Summary)
		api.GET("/summary/export", h.ExportSummary)
		api.GET("/trend", h.Trend)
		api.GET("/beds", h.Beds)

		api.POST("/forms", h.SaveForm)
		api.GET("/forms", h.GetForm)
		api.POST("/forms/:id/approve", h.RequireRole(models.RoleSupervisor, models.RoleAdmin), h.ApproveForm)
	}

	ingest := r.Group("/ingest")
	ingest.Use(h.APIKeyMiddleware())
	{
		ingest.POST("/daily-summaries", h.IngestDailySummaries)
		ingest.POST("/validate", h.ValidateDailySummaries)
		ingest.GET("/usage", h.GetMyUsage)
	}
}
