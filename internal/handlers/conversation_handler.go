package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// ConversationHandler serves /conversations/:target, where target is
// "user:<id>" or "group:<id>".
type ConversationHandler struct {
	messages *services.MessageService
	lg       *logger.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(messages *services.MessageService, lg *logger.Logger) *ConversationHandler {
	return &ConversationHandler{messages: messages, lg: lg}
}

func target(c *gin.Context) (conversation.Target, bool) {
	t, err := conversation.ParseTarget(c.Param("target"))
	if err != nil {
		badRequest(c, err.Error())
		return t, false
	}
	return t, true
}

// History handles GET /conversations/:target/messages.
func (h *ConversationHandler) History(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	msgs, err := h.messages.History(c.Request.Context(), middlewares.UserID(c), t)
	if err != nil {
		fail(c, h.lg, "load history", err)
		return
	}
	success(c, http.StatusOK, msgs)
}

// Send handles POST /conversations/:target/messages.
func (h *ConversationHandler) Send(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	var req services.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), middlewares.UserID(c), t, req)
	if err != nil {
		fail(c, h.lg, "send message", err)
		return
	}
	success(c, http.StatusCreated, msg)
}

// MarkRead reports how many direct messages were marked; group reads move
// the watermark and report 0.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	t, ok := target(c)
	if !ok {
		return
	}
	n, err := h.messages.MarkRead(c.Request.Context(), middlewares.UserID(c), t)
	if err != nil {
		fail(c, h.lg, "mark read", err)
		return
	}
	success(c, http.StatusOK, gin.H{"marked": n})
}
