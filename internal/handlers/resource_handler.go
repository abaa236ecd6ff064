package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

// ResourceHandler serves the resource library.
type ResourceHandler struct {
	resources *services.ResourceService
	lg        *logger.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(resources *services.ResourceService, lg *logger.Logger) *ResourceHandler {
	return &ResourceHandler{resources: resources, lg: lg}
}

// Search filters the library:
// GET /resources?subject=&grade=&difficulty=&resource_type=&author_id=&q=&limit=&offset=
func (h *ResourceHandler) Search(c *gin.Context) {
	f := repositories.ResourceFilter{
		Subject:      c.Query("subject"),
		Grade:        c.Query("grade"),
		Difficulty:   c.Query("difficulty"),
		ResourceType: c.Query("resource_type"),
		Query:        c.Query("q"),
		Limit:        intQuery(c, "limit"),
		Offset:       intQuery(c, "offset"),
	}
	if author := intQuery(c, "author_id"); author > 0 {
		f.AuthorID = uint(author)
	}
	items, total, err := h.resources.Search(c.Request.Context(), f)
	if err != nil {
		fail(c, h.lg, "search resources", err)
		return
	}
	success(c, http.StatusOK, gin.H{"items": items, "total": total})
}

// Facets feeds the cascading subject, grade and difficulty dropdowns.
func (h *ResourceHandler) Facets(c *gin.Context) {
	facets, err := h.resources.Facets(c.Request.Context(), c.Query("subject"), c.Query("grade"))
	if err != nil {
		fail(c, h.lg, "resource facets", err)
		return
	}
	success(c, http.StatusOK, facets)
}

// Create handles POST /resources with the caller as author.
func (h *ResourceHandler) Create(c *gin.Context) {
	var req services.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := h.resources.Create(c.Request.Context(), middlewares.UserID(c), &req)
	if err != nil {
		fail(c, h.lg, "create resource", err)
		return
	}
	success(c, http.StatusCreated, r)
}

// Get handles GET /resources/:id.
func (h *ResourceHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.resources.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.lg, "get resource", err)
		return
	}
	success(c, http.StatusOK, r)
}

// Update handles PUT /resources/:id (author only).
func (h *ResourceHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := h.resources.Update(c.Request.Context(), middlewares.UserID(c), id, &req)
	if err != nil {
		fail(c, h.lg, "update resource", err)
		return
	}
	success(c, http.StatusOK, r)
}

// Delete handles DELETE /resources/:id (author or admin).
func (h *ResourceHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.resources.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, h.lg, "delete resource", err)
		return
	}
	success(c, http.StatusOK, nil)
}

// Download handles POST /resources/:id/download and returns the new count.
func (h *ResourceHandler) Download(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, err := h.resources.RegisterDownload(c.Request.Context(), id)
	if err != nil {
		fail(c, h.lg, "register download", err)
		return
	}
	success(c, http.StatusOK, gin.H{"downloads": n})
}
