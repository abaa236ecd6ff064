package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/osslararemellan/ole/internal/services"
	logger "github.com/osslararemellan/ole/middleware/log"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&services.ValidationError{Problems: []string{"title is required"}}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", services.ErrEmptyMessage), http.StatusBadRequest},
		{services.ErrInvalidTarget, http.StatusBadRequest},
		{services.ErrTooManyFiles, http.StatusBadRequest},
		{services.ErrFileNotOwned, http.StatusForbidden},
		{services.ErrMembershipNotApproved, http.StatusForbidden},
		{fmt.Errorf("receiver: %w", services.ErrNotFound), http.StatusNotFound},
		{services.ErrAlreadyMember, http.StatusConflict},
		{services.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	fail(c, logger.NewNop(), "load", errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Len(t, c.Errors, 1)
}
