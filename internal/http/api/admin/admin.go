package admin

import (
	"net/http"
	"strings"

	"github.com/cardvault/voucher-service/internal/config"
	"github.com/cardvault/voucher-service/internal/http/api/admin/handlers"
	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/security"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers authentication and batch management routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, svc *voucher.Service) {
	if r == nil || db == nil || svc == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/auth/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	batchHandler := handlers.NewBatchHandler(svc)
	authed.POST("/batches", batchHandler.Issue)
	authed.GET("/batches", batchHandler.List)
	authed.GET("/batches/:id", batchHandler.Get)
	authed.POST("/batches/:id/invalidate", batchHandler.InvalidateBatch)
	authed.POST("/batches/:id/regenerate", batchHandler.RegenerateBatch)
	authed.POST("/bundles/:id/invalidate", batchHandler.InvalidateBundle)
	authed.POST("/bundles/:id/regenerate", batchHandler.RegenerateBundle)
	authed.POST("/cards/mark-sold", batchHandler.MarkSold)

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
