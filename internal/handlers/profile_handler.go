package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// ProfileHandler serves profile reads, self edits and admin removal.
type ProfileHandler struct {
	profiles *services.ProfileService
	lg       *logger.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService, lg *logger.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, lg: lg}
}

// Me returns the caller's profile.
func (h *ProfileHandler) Me(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		fail(c, h.lg, "get own profile", err)
		return
	}
	success(c, http.StatusOK, p)
}

// UpdateMe edits the caller's own profile fields.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		fail(c, h.lg, "update profile", err)
		return
	}
	success(c, http.StatusOK, p)
}

// Get handles GET /profiles/:id.
func (h *ProfileHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.lg, "get profile", err)
		return
	}
	success(c, http.StatusOK, p)
}

// Search matches profiles by name: GET /profiles?q=anna&limit=20.
func (h *ProfileHandler) Search(c *gin.Context) {
	found, err := h.profiles.Search(c.Request.Context(), c.Query("q"), intQuery(c, "limit"))
	if err != nil {
		fail(c, h.lg, "search profiles", err)
		return
	}
	success(c, http.StatusOK, found)
}

// Delete is the admin override.
func (h *ProfileHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.profiles.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, h.lg, "delete profile", err)
		return
	}
	success(c, http.StatusOK, nil)
}
