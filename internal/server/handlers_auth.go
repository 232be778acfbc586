package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/themes"
	"github.com/openmatlab/rollflow/internal/users"
	"go.uber.org/zap"
)

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAuthToken(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("provider token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.ResolveProfile(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to resolve profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_resolution_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type profileResponsePayload struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	BeltRank    string `json:"belt_rank"`
}

func profilePayload(profile *users.Profile) profileResponsePayload {
	return profileResponsePayload{
		UserID:      profile.UserID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		BeltRank:    profile.BeltRank,
	}
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.users.GetProfile(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profilePayload(profile))
}

type beltRequestPayload struct {
	BeltRank string `json:"belt_rank"`
}

func (h *httpHandler) handleSetBelt(c *gin.Context) {
	var request beltRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rank := themes.BeltRank(strings.ToLower(strings.TrimSpace(request.BeltRank)))
	if err := h.users.SetBeltRank(c.Request.Context(), c.GetString(userIDContextKey), rank); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"belt_rank": string(rank), "palette": themes.PaletteFor(rank)})
}

func (h *httpHandler) handleGetTheme(c *gin.Context) {
	rank := themes.ParseBeltRank(c.Param("belt"))
	c.JSON(http.StatusOK, themes.PaletteFor(rank))
}
