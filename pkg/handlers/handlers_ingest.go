package handlers

import (
	"errors"
	"net/http"

	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ingestRequest struct {
	Summaries []store.SummaryInput `json:"summaries" binding:"required,dive"`
}

// IngestDailySummaries stores a batch of precomputed daily summaries
func (h *Handler) IngestDailySummaries(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := c.GetString(ctxClientID)
	n, err := h.Store.IngestSummaries(c.Request.Context(), req.Summaries, client)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.RecordUsage(c, n)
	c.JSON(http.StatusOK, gin.H{"ingested": n})
}

// ValidateDailySummaries checks a batch without storing it
func (h *Handler) ValidateDailySummaries(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
		return
	}

	if err := h.Store.ValidateSummaries(c.Request.Context(), req.Summaries); err != nil {
		if errors.Is(err, store.ErrInvalidForm) || errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
			return
		}
		h.respondError(c, err)
		return
	}

	wards := make(map[string]bool)
	for _, s := range req.Summaries {
		wards[s.WardID] = true
	}
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"stats": gin.H{
			"summary_count": len(req.Summaries),
			"ward_count":    len(wards),
		},
	})
}

// RecordUsage counts one request and its summaries against today's usage row
func (h *Handler) RecordUsage(c *gin.Context, summaries int) {
	apiKey := currentAPIKey(c)
	if apiKey == nil {
		return
	}

	err := h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":   gorm.Expr("request_count + ?", 1),
			"total_summaries": gorm.Expr("total_summaries + ?", summaries),
		}),
	}).Create(&database.APIUsage{
		KeyID:          apiKey.ID,
		Date:           h.today(),
		RequestCount:   1,
		TotalSummaries: summaries,
	}).Error
	if err != nil {
		h.logger().Warn("Failed to record API usage", zap.Uint("key_id", apiKey.ID), zap.Error(err))
	}
}

// GetMyUsage returns usage stats for the calling API key
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKey := currentAPIKey(c)
	if apiKey == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}

	var usage []database.APIUsage
	if err := h.DB.Where("key_id = ?", apiKey.ID).Order("date desc").Limit(30).Find(&usage).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	var totalRequests, totalSummaries int64
	for _, u := range usage {
		totalRequests += int64(u.RequestCount)
		totalSummaries += int64(u.TotalSummaries)
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      apiKey.Name,
		"last_used":     apiKey.LastUsed,
		"usage_history": usage,
		"totals": gin.H{
			"requests":  totalRequests,
			"summaries": totalSummaries,
		},
	})
}
