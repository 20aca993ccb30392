package routes

import (
	"github.com/stashd/stashd-backend/internal/handler"
	"github.com/stashd/stashd-backend/internal/middleware"
	"github.com/stashd/stashd-backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Setup configures all API routes
func Setup(
	router *gin.Engine,
	contentHandler *handler.ContentHandler,
	historyHandler *handler.HistoryHandler,
	cleanupHandler *handler.CleanupHandler,
	jwtManager *jwt.Manager,
) {
	api := router.Group("/api/v1", middleware.JWTAuth(jwtManager), middleware.Provenance())

	// Cross-entity history
	api.GET("/history", historyHandler.ListUserHistory)

	// Operational
	api.POST("/admin/cleanup", cleanupHandler.Run)

	// Content items; entity_type is bookmark|note|prompt
	entity := api.Group("/:entity_type")
	entity.POST("", contentHandler.Create)
	entity.GET("/:id", contentHandler.Get)
	entity.PUT("/:id", contentHandler.Update)
	entity.DELETE("/:id", contentHandler.Delete)
	entity.POST("/:id/undelete", contentHandler.Undelete)
	entity.POST("/:id/archive", contentHandler.Archive)
	entity.POST("/:id/unarchive", contentHandler.Unarchive)
	entity.POST("/:id/restore", contentHandler.RestoreVersion)
	entity.DELETE("/:id/purge", contentHandler.Purge)

	// Per-entity history
	entity.GET("/:id/history", historyHandler.ListEntityHistory)
	entity.DELETE("/:id/history", historyHandler.DeleteEntityHistory)
	entity.GET("/:id/history/:version", historyHandler.GetVersion)
	entity.GET("/:id/versions/:version/content", historyHandler.GetVersionContent)
	entity.GET("/:id/versions/:version/diff", historyHandler.GetVersionDiff)
}
