package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/techniques"
)

type techniqueRequestPayload struct {
	Name        string   `json:"name"`
	EnglishName string   `json:"english_name"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	VideoURL    string   `json:"video_url"`
	Tags        []string `json:"tags"`
	Mastery     string   `json:"mastery"`
	BaseVersion int64    `json:"base_version"`
}

type techniqueResponsePayload struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	EnglishName      string   `json:"english_name"`
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Description      string   `json:"description"`
	VideoURL         string   `json:"video_url"`
	VideoRefs        []string `json:"video_refs"`
	Tags             []string `json:"tags"`
	Mastery          string   `json:"mastery"`
	Version          int64    `json:"version"`
	CreatedAtSeconds int64    `json:"created_at_s"`
	UpdatedAtSeconds int64    `json:"updated_at_s"`
}

func techniquePayload(t *techniques.Technique) techniqueResponsePayload {
	videoRefs := t.VideoRefs
	if videoRefs == nil {
		videoRefs = []string{}
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return techniqueResponsePayload{
		ID:               t.ID,
		Name:             t.Name,
		EnglishName:      t.EnglishName,
		Category:         t.Category,
		Type:             t.Type,
		Description:      t.Description,
		VideoURL:         t.VideoURL,
		VideoRefs:        videoRefs,
		Tags:             tags,
		Mastery:          t.Mastery,
		Version:          t.Version,
		CreatedAtSeconds: t.CreatedAtSeconds,
		UpdatedAtSeconds: t.UpdatedAtSeconds,
	}
}

func (h *httpHandler) handleCreateTechnique(c *gin.Context) {
	var request techniqueRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.techniques.Create(c.Request.Context(), c.GetString(userIDContextKey), techniques.CreateInput{
		Name:        request.Name,
		EnglishName: request.EnglishName,
		Category:    request.Category,
		Type:        request.Type,
		Description: request.Description,
		VideoURL:    request.VideoURL,
		Tags:        request.Tags,
		Mastery:     request.Mastery,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, techniquePayload(created))
}

func (h *httpHandler) handleListTechniques(c *gin.Context) {
	items, err := h.techniques.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]techniqueResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, techniquePayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"techniques": payloads})
}

func (h *httpHandler) handleGetTechnique(c *gin.Context) {
	item, err := h.techniques.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, techniquePayload(item))
}

func (h *httpHandler) handleUpdateTechnique(c *gin.Context) {
	var request techniqueRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.techniques.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), techniques.UpdateInput{
		Name:        request.Name,
		EnglishName: request.EnglishName,
		Category:    request.Category,
		Type:        request.Type,
		Description: request.Description,
		VideoURL:    request.VideoURL,
		Tags:        request.Tags,
		BaseVersion: request.BaseVersion,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, techniquePayload(updated))
}

func (h *httpHandler) handleDeleteTechnique(c *gin.Context) {
	if err := h.techniques.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type masteryRequestPayload struct {
	Mastery string `json:"mastery"`
}

func (h *httpHandler) handleSetMastery(c *gin.Context) {
	var request masteryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tier, err := techniques.ParseMastery(request.Mastery)
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated, err := h.techniques.SetMastery(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), tier)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, techniquePayload(updated))
}

type videoRefRequestPayload struct {
	VideoRef string `json:"video_ref"`
}

func (h *httpHandler) handleAddTechniqueVideo(c *gin.Context) {
	var request videoRefRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.techniques.AddVideoRef(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.VideoRef)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, techniquePayload(updated))
}
