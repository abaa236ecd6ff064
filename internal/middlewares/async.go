package middlewares

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/utils"
)

// Async runs the rest of the chain on the worker pool and waits for it, so
// the number of requests doing database work at once is bounded by the
// pool size. Requests queue instead of being rejected while the queue has
// room. gin.Context is not safe for concurrent use; the caller blocks until
// the job is done, so only one goroutine touches c at a time.
func Async(pool *utils.WorkerPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pool == nil {
			c.Next()
			return
		}

		done := make(chan struct{})
		job := utils.Job{
			Name: "http " + c.FullPath(),
			Run: func(context.Context) {
				defer close(done)
				defer func() {
					// Recovery runs on the request goroutine and cannot see this one.
					if r := recover(); r != nil {
						_ = c.Error(fmt.Errorf("panic: %v", r))
						c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
					}
				}()
				c.Next()
			},
		}
		if err := pool.Submit(c.Request.Context(), job); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
			return
		}
		<-done
	}
}
