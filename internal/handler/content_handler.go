package handler

import (
	"errors"
	"net/http"

	"github.com/stashd/stashd-backend/internal/common"
	"github.com/stashd/stashd-backend/internal/domain"
	"github.com/stashd/stashd-backend/internal/middleware"
	"github.com/stashd/stashd-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// ContentHandler serves the content item CRUD surface. Every mutation
// lands in the history engine via the content service.
type ContentHandler struct {
	content service.ContentService
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(content service.ContentService) *ContentHandler {
	return &ContentHandler{content: content}
}

// Create handles POST /api/v1/:entity_type
// @Summary Create a content item
// @Tags content
// @Accept json
// @Produce json
// @Success 201 {object} common.APIResponse
// @Router /{entity_type} [post]
func (h *ContentHandler) Create(c *gin.Context) {
	entityType, ok := domain.ParseEntityType(c.Param("entity_type"))
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Unknown entity type", nil)
		return
	}
	var in service.ContentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entityID, rec, err := h.content.Create(middleware.GetUserID(c), entityType, in, middleware.GetProvenance(c))
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to create item", err)
		return
	}
	common.CreatedResponse(c, gin.H{"id": entityID, "history": rec})
}

// Update handles PUT /api/v1/:entity_type/:id
// @Summary Update a content item
// @Tags content
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	var in service.ContentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.content.Update(middleware.GetUserID(c), entityType, entityID, in, middleware.GetProvenance(c))
	if err != nil {
		h.writeError(c, err, "Failed to update item")
		return
	}
	common.SuccessResponse(c, gin.H{"history": rec}, nil)
}

// Get handles GET /api/v1/:entity_type/:id
// @Summary Get a content item's live state
// @Tags content
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	live, found, err := h.content.Get(middleware.GetUserID(c), entityType, entityID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to load item", err)
		return
	}
	if !found {
		common.ErrorResponse(c, http.StatusNotFound, "Item not found", nil)
		return
	}
	common.SuccessResponse(c, gin.H{"content": live.Content, "metadata": live.Metadata}, nil)
}

// Delete handles DELETE /api/v1/:entity_type/:id (soft delete)
func (h *ContentHandler) Delete(c *gin.Context) {
	h.lifecycle(c, h.content.Delete)
}

// Undelete handles POST /api/v1/:entity_type/:id/undelete
func (h *ContentHandler) Undelete(c *gin.Context) {
	h.lifecycle(c, h.content.Undelete)
}

// Archive handles POST /api/v1/:entity_type/:id/archive
func (h *ContentHandler) Archive(c *gin.Context) {
	h.lifecycle(c, h.content.Archive)
}

// Unarchive handles POST /api/v1/:entity_type/:id/unarchive
func (h *ContentHandler) Unarchive(c *gin.Context) {
	h.lifecycle(c, h.content.Unarchive)
}

// RestoreVersion handles POST /api/v1/:entity_type/:id/restore
// @Summary Restore a past version as a new version
// @Tags content
// @Accept json
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /{entity_type}/{id}/restore [post]
func (h *ContentHandler) RestoreVersion(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	var body struct {
		Version int `json:"version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.content.RestoreVersion(middleware.GetUserID(c), entityType, entityID, body.Version, middleware.GetProvenance(c))
	if err != nil {
		h.writeError(c, err, "Failed to restore version")
		return
	}
	common.SuccessResponse(c, gin.H{"history": rec}, nil)
}

// Purge handles DELETE /api/v1/:entity_type/:id/purge
// @Summary Permanently delete an item and its entire history
// @Tags content
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /{entity_type}/{id}/purge [delete]
func (h *ContentHandler) Purge(c *gin.Context) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	deleted, err := h.content.Purge(middleware.GetUserID(c), entityType, entityID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "Failed to purge item", err)
		return
	}
	common.SuccessResponse(c, gin.H{"history_deleted": deleted}, nil)
}

type lifecycleFunc func(userID string, entityType domain.EntityType, entityID string, prov domain.Provenance) error

func (h *ContentHandler) lifecycle(c *gin.Context, fn lifecycleFunc) {
	entityType, entityID, ok := entityParam(c)
	if !ok {
		return
	}
	if err := fn(middleware.GetUserID(c), entityType, entityID, middleware.GetProvenance(c)); err != nil {
		h.writeError(c, err, "Failed to update item state")
		return
	}
	common.SuccessResponse(c, gin.H{"ok": true}, nil)
}

func (h *ContentHandler) writeError(c *gin.Context, err error, message string) {
	if errors.Is(err, common.ErrNotFound) {
		common.ErrorResponse(c, http.StatusNotFound, "Item not found", nil)
		return
	}
	if errors.Is(err, common.ErrVersionConflict) {
		common.ErrorResponse(c, http.StatusConflict, "Concurrent modification, retry", err)
		return
	}
	common.ErrorResponse(c, http.StatusInternalServerError, message, err)
}
