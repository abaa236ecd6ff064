// Package handlers exposes the services over HTTP. Every handler expects
// middlewares.Auth to have run.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case services.IsValidation(err),
		errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, services.ErrSelfTarget),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrTooManyMaterials),
		errors.Is(err, services.ErrTooManyFiles),
		errors.Is(err, services.ErrUnknownMaterial),
		errors.Is(err, services.ErrFileTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrFileNotOwned),
		errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrMembershipNotApproved):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrOwnerCannotLeave),
		errors.Is(err, services.ErrInvalidMemberState):
		return http.StatusConflict
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Unexpected errors are logged and
// hidden from the caller.
func fail(c *gin.Context, lg *logger.Logger, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		lg.ErrorContext(c.Request.Context(), op+" failed",
			zap.Uint("user_id", middlewares.UserID(c)), zap.Error(err))
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// idParam reads a positive integer path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// intQuery reads an optional integer query parameter; malformed values
// count as absent.
func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}

func actor(c *gin.Context) services.Actor {
	return services.Actor{ID: middlewares.UserID(c), Role: middlewares.Role(c)}
}
