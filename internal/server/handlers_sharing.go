package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/sharing"
	"go.uber.org/zap"
)

type shareRequestPayload struct {
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Visibility  string          `json:"visibility"`
}

func (p shareRequestPayload) toInput() sharing.ShareInput {
	return sharing.ShareInput{
		ContentType: p.ContentType,
		ContentJSON: string(p.Content),
		Title:       p.Title,
		Description: p.Description,
		Visibility:  p.Visibility,
	}
}

type sharedContentResponsePayload struct {
	ShareCode        string          `json:"share_code"`
	ContentType      string          `json:"content_type"`
	Content          json.RawMessage `json:"content"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Visibility       string          `json:"visibility"`
	CreatedAtSeconds int64           `json:"created_at_s"`
}

func sharedContentPayload(record *sharing.SharedContent) sharedContentResponsePayload {
	return sharedContentResponsePayload{
		ShareCode:        record.ShareCode,
		ContentType:      record.ContentType,
		Content:          json.RawMessage(record.ContentJSON),
		Title:            record.Title,
		Description:      record.Description,
		Visibility:       record.Visibility,
		CreatedAtSeconds: record.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleShare(c *gin.Context) {
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.sharing.Share(c.Request.Context(), c.GetString(userIDContextKey), request.toInput())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"share_code": result.Code, "fallback": result.Fallback})
}

func (h *httpHandler) handleResolveShare(c *gin.Context) {
	record, err := h.sharing.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, sharedContentPayload(record))
}

func (h *httpHandler) handleListPublicShares(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		limit = parsed
	}
	items, err := h.sharing.ListPublic(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]sharedContentResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, sharedContentPayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"shares": payloads})
}

type groupSharedResponsePayload struct {
	ID               string          `json:"id"`
	GroupID          string          `json:"group_id"`
	ContentType      string          `json:"content_type"`
	Content          json.RawMessage `json:"content"`
	SharerID         string          `json:"sharer_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	CreatedAtSeconds int64           `json:"created_at_s"`
}

func groupSharedPayload(record *sharing.GroupSharedContent) groupSharedResponsePayload {
	return groupSharedResponsePayload{
		ID:               record.ID,
		GroupID:          record.GroupID,
		ContentType:      record.ContentType,
		Content:          json.RawMessage(record.ContentJSON),
		SharerID:         record.SharerID,
		Title:            record.Title,
		Description:      record.Description,
		CreatedAtSeconds: record.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleShareToGroup(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	groupID := c.Param("id")
	if _, err := h.groups.Membership(c.Request.Context(), userID, groupID); err != nil {
		h.respondError(c, err)
		return
	}
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record, err := h.sharing.ShareToGroup(c.Request.Context(), userID, groupID, request.toInput())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupSharedPayload(record))
}

func (h *httpHandler) handleListGroupShares(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	groupID := c.Param("id")
	if _, err := h.groups.Membership(c.Request.Context(), userID, groupID); err != nil {
		h.respondError(c, err)
		return
	}
	items, err := h.sharing.ListGroupShared(c.Request.Context(), groupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]groupSharedResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, groupSharedPayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"shares": payloads})
}

func (h *httpHandler) handleDeleteGroupShare(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if _, err := h.groups.Membership(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.sharing.DeleteGroupShared(c.Request.Context(), userID, c.Param("sharedID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUploadMedia(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	url, err := h.media.Save(data, c.ContentType())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Debug("media uploaded", zap.String("url", url))
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
