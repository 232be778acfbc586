package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/training"
)

type trainingLogRequestPayload struct {
	Date           string   `json:"date"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Condition      int      `json:"condition"`
	SparringRounds int      `json:"sparring_rounds"`
	Content        string   `json:"content"`
	VideoRefs      []string `json:"video_refs"`
	BaseVersion    int64    `json:"base_version"`
}

type trainingLogResponsePayload struct {
	ID               string   `json:"id"`
	Date             string   `json:"date"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	DurationMinutes  int      `json:"duration_minutes"`
	Condition        int      `json:"condition"`
	SparringRounds   int      `json:"sparring_rounds"`
	Content          string   `json:"content"`
	VideoRefs        []string `json:"video_refs"`
	Version          int64    `json:"version"`
	CreatedAtSeconds int64    `json:"created_at_s"`
	UpdatedAtSeconds int64    `json:"updated_at_s"`
}

func trainingLogPayload(l *training.TrainingLog) trainingLogResponsePayload {
	videoRefs := l.VideoRefs
	if videoRefs == nil {
		videoRefs = []string{}
	}
	return trainingLogResponsePayload{
		ID:               l.ID,
		Date:             l.Date,
		StartTime:        l.StartTime,
		EndTime:          l.EndTime,
		DurationMinutes:  l.DurationMinutes(),
		Condition:        l.Condition,
		SparringRounds:   l.SparringRounds,
		Content:          l.Content,
		VideoRefs:        videoRefs,
		Version:          l.Version,
		CreatedAtSeconds: l.CreatedAtSeconds,
		UpdatedAtSeconds: l.UpdatedAtSeconds,
	}
}

func trainingInput(request trainingLogRequestPayload) training.Input {
	return training.Input{
		Date:           request.Date,
		StartTime:      request.StartTime,
		EndTime:        request.EndTime,
		Condition:      request.Condition,
		SparringRounds: request.SparringRounds,
		Content:        request.Content,
		VideoRefs:      request.VideoRefs,
		BaseVersion:    request.BaseVersion,
	}
}

func (h *httpHandler) handleCreateTrainingLog(c *gin.Context) {
	var request trainingLogRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.training.Create(c.Request.Context(), c.GetString(userIDContextKey), trainingInput(request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trainingLogPayload(created))
}

func (h *httpHandler) handleListTrainingLogs(c *gin.Context) {
	items, err := h.training.List(c.Request.Context(), c.GetString(userIDContextKey), c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]trainingLogResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, trainingLogPayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"training_logs": payloads})
}

func (h *httpHandler) handleGetTrainingLog(c *gin.Context) {
	item, err := h.training.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trainingLogPayload(item))
}

func (h *httpHandler) handleUpdateTrainingLog(c *gin.Context) {
	var request trainingLogRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.training.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), trainingInput(request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trainingLogPayload(updated))
}

func (h *httpHandler) handleDeleteTrainingLog(c *gin.Context) {
	if err := h.training.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
