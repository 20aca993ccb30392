package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/middleware"
	"github.com/stashd/stashd-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// HistoryHandler serves the content history read API.
type HistoryHandler struct {
	history service.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(history service.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func pagination(c *gin.Context) (limit, offset, page int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit, page
}

func entityParam(c *gin.Context) (domain.EntityType, string, bool) {
	entityType, ok := domain.ParseEntityType(c.Param("entity_type"))
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Unknown entity type", nil)
		return "", "", false
	}
	return entityType, c.Param("id"), true
}

// ListEntityHistory handles GET /api/v1/:entity_type/:id/history
// @Summary List one item's history
// @Description Versioned and audit records interleaved, newest first
// @Tags history
// @Produce json
// @Param entity_type path string true "bookmark|note|prompt"
// @Param id path string true "entity ID"
// @Param page query int false "page number"
// @Param limit query int false "items per page"
// @Success 200 {object} common.APIResponse
// @Router /{entity_type}/{id}/history [get]
func (h *HistoryHandler) ListEntityHistory(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	limit, offset, page := pagination(c)

	records, total, err := h.history.GetEntityHistory(middleware.GetUserID(c), entityType, entityID, limit, offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load history", err)
		return
	}
	common.SuccessResponse(c, records, &common.Meta{Page: page, Limit: limit, Total: total})
}

// ListUserHistory handles GET /api/v1/history
// @Summary List the user's history across all items
// @Tags history
// @Produce json
// @Param entity_types query string false "CSV of entity types"
// @Param actions query string false "CSV of actions"
// @Param sources query string false "CSV of sources"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} common.APIResponse
// @Router /history [get]
func (h *HistoryHandler) ListUserHistory(c *gin.Context) {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	limit, offset, page := pagination(c)

	records, total, err := h.history.GetUserHistory(middleware.GetUserID(c), filter, limit, offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load history", err)
		return
	}
	common.SuccessResponse(c, records, &common.Meta{Page: page, Limit: limit, Total: total})
}

// GetVersion handles GET /api/v1/:entity_type/:id/history/:version
// @Summary Get the history record at a version
// @Tags history
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id}/history/{version} [get]
func (h *HistoryHandler) GetVersion(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	version, _ := strconv.Atoi(c.Param("version"))

	rec, found, err := h.history.GetHistoryAtVersion(middleware.GetUserID(c), entityType, entityID, version)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load version", err)
		return
	}
	if !found {
		common.ErrorResponse(c, http.StatusNotFound, "Version not found", nil)
		return
	}
	common.SuccessResponse(c, rec, nil)
}

// GetVersionContent handles GET /api/v1/:entity_type/:id/versions/:version/content
// @Summary Reconstruct the content at a version
// @Tags history
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id}/versions/{version}/content [get]
func (h *HistoryHandler) GetVersionContent(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	version, _ := strconv.Atoi(c.Param("version"))

	result, err := h.history.ReconstructContentAtVersion(middleware.GetUserID(c), entityType, entityID, version)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to reconstruct content", err)
		return
	}
	if !result.Found {
		common.ErrorResponse(c, http.StatusNotFound, "Version not found", nil)
		return
	}
	common.SuccessResponse(c, result, nil)
}

// GetVersionDiff handles GET /api/v1/:entity_type/:id/versions/:version/diff
// @Summary Before/after content and metadata for a version
// @Tags history
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id}/versions/{version}/diff [get]
func (h *HistoryHandler) GetVersionDiff(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	version, _ := strconv.Atoi(c.Param("version"))

	result, err := h.history.GetVersionDiff(middleware.GetUserID(c), entityType, entityID, version)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to resolve diff", err)
		return
	}
	if !result.Found {
		common.ErrorResponse(c, http.StatusNotFound, "Version not found", nil)
		return
	}
	common.SuccessResponse(c, result, nil)
}

// DeleteEntityHistory handles DELETE /api/v1/:entity_type/:id/history
// @Summary Hard-delete all history for an item
// @Tags history
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /{entity_type}/{id}/history [delete]
func (h *HistoryHandler) DeleteEntityHistory(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	deleted, err := h.history.DeleteEntityHistory(middleware.GetUserID(c), entityType, entityID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete history", err)
		return
	}
	common.SuccessResponse(c, gin.H{"deleted": deleted}, nil)
}

func parseHistoryFilter(c *gin.Context) (domain.HistoryFilter, error) {
	var filter domain.HistoryFilter

	for _, raw := range splitCSV(c.Query("entity_types")) {
		entityType, ok := domain.ParseEntityType(raw)
		if !ok {
			return filter, common.ErrInvalidEntity
		}
		filter.EntityTypes = append(filter.EntityTypes, entityType)
	}
	for _, raw := range splitCSV(c.Query("actions")) {
		action := domain.HistoryAction(raw)
		if !action.Valid() {
			return filter, common.ErrInvalidAction
		}
		filter.Actions = append(filter.Actions, action)
	}
	filter.Sources = splitCSV(c.Query("sources"))

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	return filter, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
