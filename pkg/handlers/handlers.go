package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/ward-census-api/pkg/auth"
	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/dashboard"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/export"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/arnavshah/ward-census-api/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ctxUser     = "user"
	ctxAPIKey   = "apiKey"
	ctxClientID = "clientID"
	ctxReqID    = "request_id"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Store   *store.GormStore
	Service *dashboard.Service
	Auth    *auth.Authenticator
	Logger  *zap.Logger

	// Now supplies the current time for default date ranges
	Now func() time.Time
}

func (h *Handler) today() string {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return now().Format(census.DateLayout)
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// RequestLogger logs one line per request
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxReqID, rid)
		c.Header("X-Request-ID", rid)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", rid),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			h.logger().Error("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		h.logger().Info("request", fields...)
	}
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

// AuthMiddleware verifies the dashboard JWT and stores the caller identity
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxUser, claims.UserContext())
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed
func (h *Handler) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
	}
}

// APIKeyMiddleware verifies the HMAC API key of an ingestion client
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			return
		}

		clientID, err := h.Auth.VerifyHMACKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			return
		}

		apiKey, err := auth.TrackAPIKey(h.DB, key, clientID)
		if err != nil {
			h.logger().Error("Failed to record API key use", zap.String("client", clientID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not record API key"})
			return
		}

		c.Set(ctxAPIKey, apiKey)
		c.Set(ctxClientID, clientID)
		c.Next()
	}
}

func currentUser(c *gin.Context) models.UserContext {
	if v, ok := c.Get(ctxUser); ok {
		if u, ok := v.(models.UserContext); ok {
			return u
		}
	}
	return models.UserContext{}
}

func currentAPIKey(c *gin.Context) *database.APIKey {
	if v, ok := c.Get(ctxAPIKey); ok {
		if k, ok := v.(*database.APIKey); ok {
			return k
		}
	}
	return nil
}

// respondError maps domain errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dashboard.ErrStale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "stale": true})
	case errors.Is(err, census.ErrInvalidRange),
		errors.Is(err, store.ErrInvalidForm),
		errors.Is(err, export.ErrUnknownFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dashboard.ErrWardNotAccessible):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrFormLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Banner describes the service
func (h *Handler) Banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Ward Census API",
		"version": "1.0.0",
	})
}

// Login handles dashboard login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := auth.Login(h.DB, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.Auth.CreateToken(auth.UserContextOf(user))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"role":         user.Role,
		"ward_id":      user.WardID,
	})
}
