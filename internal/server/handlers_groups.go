package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/groups"
)

type groupResponsePayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	CreatorID        string `json:"creator_id"`
	IconURL          string `json:"icon_url"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func groupPayload(g *groups.Group) groupResponsePayload {
	return groupResponsePayload{
		ID:               g.ID,
		Name:             g.Name,
		CreatorID:        g.CreatorID,
		IconURL:          g.IconURL,
		CreatedAtSeconds: g.CreatedAtSeconds,
	}
}

type groupMemberResponsePayload struct {
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
	JoinedAtSeconds int64  `json:"joined_at_s"`
}

type createGroupRequestPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.groups.Create(c.Request.Context(), c.GetString(userIDContextKey), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupPayload(created))
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	items, err := h.groups.List(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]groupResponsePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, groupPayload(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"groups": payloads})
}

func (h *httpHandler) handleGetGroup(c *gin.Context) {
	item, err := h.groups.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupPayload(item))
}

func (h *httpHandler) handleDeleteGroup(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListGroupMembers(c *gin.Context) {
	members, err := h.groups.Members(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]groupMemberResponsePayload, 0, len(members))
	for _, member := range members {
		payloads = append(payloads, groupMemberResponsePayload{
			UserID:          member.UserID,
			Role:            string(member.Role),
			JoinedAtSeconds: member.JoinedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"members": payloads})
}

type addMemberRequestPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *httpHandler) handleAddGroupMember(c *gin.Context) {
	var request addMemberRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	role := groups.RoleMember
	if request.Role == string(groups.RoleAdmin) {
		role = groups.RoleAdmin
	}
	if err := h.groups.AddMember(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.UserID, role); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRemoveGroupMember(c *gin.Context) {
	if err := h.groups.RemoveMember(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), c.Param("userID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type groupIconRequestPayload struct {
	IconURL string `json:"icon_url"`
}

func (h *httpHandler) handleSetGroupIcon(c *gin.Context) {
	var request groupIconRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.groups.SetIcon(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.IconURL); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
