package handler

import (
	"net/http"
	"time"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// CleanupHandler exposes the retention jobs for operational use.
// Normally the scheduler runs them; this endpoint is for manual runs.
type CleanupHandler struct {
	cleanup service.CleanupService
}

// NewCleanupHandler creates a new CleanupHandler
func NewCleanupHandler(cleanup service.CleanupService) *CleanupHandler {
	return &CleanupHandler{cleanup: cleanup}
}

// Run handles POST /api/v1/admin/cleanup
// @Summary Run retention and orphan cleanup now
// @Tags admin
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /admin/cleanup [post]
func (h *CleanupHandler) Run(c *gin.Context) {
	stats, err := h.cleanup.RunCleanup(time.Now())
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Cleanup failed", err)
		return
	}
	common.SuccessResponse(c, gin.H{"summary": stats.Summary(), "stats": stats}, nil)
}
