package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	"github.com/osslararemellan/ole/internal/session"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// FileHandler accepts attachment uploads, optionally straight into a live
// session's composer.
type FileHandler struct {
	files    *services.FileService
	sessions *session.Registry
	lg       *logger.Logger
}

// NewFileHandler creates a FileHandler. sessions resolves session_id.
func NewFileHandler(files *services.FileService, sessions *session.Registry, lg *logger.Logger) *FileHandler {
	return &FileHandler{files: files, sessions: sessions, lg: lg}
}

// Upload stores the multipart "file" field. With a session_id form field
// the file is attached to that session's composer, which enforces the
// attachment limit before anything is stored.
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return
	}
	body, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer body.Close()

	me := middlewares.UserID(c)
	contentType := header.Header.Get("Content-Type")
	ctx := c.Request.Context()

	var f *services.FileDTO
	if id := c.PostForm("session_id"); id != "" {
		s, ok := h.sessions.Lookup(id, me)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		f, err = s.Upload(ctx, header.Filename, contentType, header.Size, body)
	} else {
		f, err = h.files.Upload(ctx, me, header.Filename, contentType, header.Size, body)
	}
	if err != nil {
		fail(c, h.lg, "upload file", err)
		return
	}
	success(c, http.StatusCreated, f)
}

// Get handles GET /files/:id for the owner only.
func (h *FileHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.files.Get(c.Request.Context(), middlewares.UserID(c), id)
	if err != nil {
		fail(c, h.lg, "get file", err)
		return
	}
	success(c, http.StatusOK, f)
}
