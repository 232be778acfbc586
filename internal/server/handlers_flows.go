package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/flows"
)

type flowRequestPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	FlowData    json.RawMessage `json:"flow_data"`
	BaseVersion int64           `json:"base_version"`
}

type flowResponsePayload struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Tags             []string        `json:"tags"`
	Favorite         bool            `json:"favorite"`
	FlowData         json.RawMessage `json:"flow_data"`
	Version          int64           `json:"version"`
	CreatedAtSeconds int64           `json:"created_at_s"`
	UpdatedAtSeconds int64           `json:"updated_at_s"`
}

func flowPayload(f *flows.Flow) flowResponsePayload {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return flowResponsePayload{
		ID:               f.ID,
		Name:             f.Name,
		Description:      f.Description,
		Tags:             tags,
		Favorite:         f.Favorite,
		FlowData:         json.RawMessage(f.FlowData),
		Version:          f.Version,
		CreatedAtSeconds: f.CreatedAtSeconds,
		UpdatedAtSeconds: f.UpdatedAtSeconds,
	}
}

func (h *httpHandler) handleCreateFlow(c *gin.Context) {
	var request flowRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.flows.Create(c.Request.Context(), c.GetString(userIDContextKey), flows.CreateInput{
		Name:        request.Name,
		Description: request.Description,
		Tags:        request.Tags,
		FlowData:    string(request.FlowData),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flowPayload(created))
}

func (h *httpHandler) handleListFlows(c *gin.Context) {
	items, err := h.flows.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]flowResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, flowPayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"flows": payloads})
}

func (h *httpHandler) handleGetFlow(c *gin.Context) {
	item, err := h.flows.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowPayload(item))
}

func (h *httpHandler) handleUpdateFlow(c *gin.Context) {
	var request flowRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.flows.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), flows.UpdateInput{
		Name:        request.Name,
		Description: request.Description,
		Tags:        request.Tags,
		FlowData:    string(request.FlowData),
		BaseVersion: request.BaseVersion,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowPayload(updated))
}

func (h *httpHandler) handleDeleteFlow(c *gin.Context) {
	if err := h.flows.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type favoriteRequestPayload struct {
	Favorite bool `json:"favorite"`
}

func (h *httpHandler) handleSetFlowFavorite(c *gin.Context) {
	var request favoriteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.flows.SetFavorite(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.Favorite)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowPayload(updated))
}
