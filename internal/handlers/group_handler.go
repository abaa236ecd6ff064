package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// GroupHandler serves group management and the caller's group list.
type GroupHandler struct {
	groups *services.GroupService
	lg     *logger.Logger
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(groups *services.GroupService, lg *logger.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, lg: lg}
}

// Mine lists the caller's memberships with their status and unread count.
func (h *GroupHandler) Mine(c *gin.Context) {
	entries, err := h.groups.Directory(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		fail(c, h.lg, "list groups", err)
		return
	}
	success(c, http.StatusOK, entries)
}

// Create handles POST /groups. The caller becomes the owner.
func (h *GroupHandler) Create(c *gin.Context) {
	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	g, err := h.groups.Create(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		fail(c, h.lg, "create group", err)
		return
	}
	success(c, http.StatusCreated, g)
}

// Update handles PUT /groups/:group_id (owner only).
func (h *GroupHandler) Update(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	var req services.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	g, err := h.groups.Update(c.Request.Context(), middlewares.UserID(c), groupID, &req)
	if err != nil {
		fail(c, h.lg, "update group", err)
		return
	}
	success(c, http.StatusOK, g)
}

// Delete handles DELETE /groups/:group_id (owner only).
func (h *GroupHandler) Delete(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	if err := h.groups.Delete(c.Request.Context(), middlewares.UserID(c), groupID); err != nil {
		fail(c, h.lg, "delete group", err)
		return
	}
	success(c, http.StatusOK, nil)
}

// Join asks to join. Public groups approve at once; private ones leave the
// request pending for the owner.
func (h *GroupHandler) Join(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	m, err := h.groups.RequestJoin(c.Request.Context(), middlewares.UserID(c), groupID)
	if err != nil {
		fail(c, h.lg, "join group", err)
		return
	}
	success(c, http.StatusCreated, m)
}

type inviteRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// Invite handles POST /groups/:group_id/invites.
func (h *GroupHandler) Invite(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.groups.Invite(c.Request.Context(), middlewares.UserID(c), groupID, req.UserID)
	if err != nil {
		fail(c, h.lg, "invite member", err)
		return
	}
	success(c, http.StatusCreated, m)
}

// Approve accepts an invitation (the invitee) or a join request (the owner).
func (h *GroupHandler) Approve(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	m, err := h.groups.Approve(c.Request.Context(), middlewares.UserID(c), groupID, userID)
	if err != nil {
		fail(c, h.lg, "approve member", err)
		return
	}
	success(c, http.StatusOK, m)
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.groups.RemoveMember(c.Request.Context(), middlewares.UserID(c), groupID, userID); err != nil {
		fail(c, h.lg, "remove member", err)
		return
	}
	success(c, http.StatusOK, nil)
}

// Leave handles POST /groups/:group_id/leave.
func (h *GroupHandler) Leave(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	if err := h.groups.Leave(c.Request.Context(), middlewares.UserID(c), groupID); err != nil {
		fail(c, h.lg, "leave group", err)
		return
	}
	success(c, http.StatusOK, nil)
}

// Members handles GET /groups/:group_id/members.
func (h *GroupHandler) Members(c *gin.Context) {
	groupID, ok := idParam(c, "group_id")
	if !ok {
		return
	}
	members, err := h.groups.Members(c.Request.Context(), middlewares.UserID(c), groupID)
	if err != nil {
		fail(c, h.lg, "list members", err)
		return
	}
	success(c, http.StatusOK, members)
}
