package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// ContactHandler serves the contact list and the merged directory.
type ContactHandler struct {
	contacts *services.ContactService
	lg       *logger.Logger
}

// NewContactHandler creates a ContactHandler.
func NewContactHandler(contacts *services.ContactService, lg *logger.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, lg: lg}
}

// Directory lists everyone the caller has talked to or saved, newest
// conversation first.
func (h *ContactHandler) Directory(c *gin.Context) {
	dir, err := h.contacts.Directory(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		fail(c, h.lg, "load directory", err)
		return
	}
	success(c, http.StatusOK, dir.Entries())
}

// List handles GET /contacts: the caller's explicit contacts by name.
func (h *ContactHandler) List(c *gin.Context) {
	profiles, err := h.contacts.ListContacts(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		fail(c, h.lg, "list contacts", err)
		return
	}
	success(c, http.StatusOK, profiles)
}

type addContactRequest struct {
	ContactID uint `json:"contact_id" binding:"required"`
}

// Add handles POST /contacts. Adding an existing contact succeeds.
func (h *ContactHandler) Add(c *gin.Context) {
	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.contacts.AddContact(c.Request.Context(), middlewares.UserID(c), req.ContactID); err != nil {
		fail(c, h.lg, "add contact", err)
		return
	}
	success(c, http.StatusCreated, gin.H{"contact_id": req.ContactID})
}

// Remove handles DELETE /contacts/:contact_id.
func (h *ContactHandler) Remove(c *gin.Context) {
	id, ok := idParam(c, "contact_id")
	if !ok {
		return
	}
	if err := h.contacts.RemoveContact(c.Request.Context(), middlewares.UserID(c), id); err != nil {
		fail(c, h.lg, "remove contact", err)
		return
	}
	success(c, http.StatusOK, nil)
}
