package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/copper/internal/shared/apperr"
)

// BodyLimit rejects request bodies larger than limit bytes. Declared
// lengths are checked up front; chunked bodies are capped while read, and
// the handler sees an *http.MaxBytesError from its decoder.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			err := apperr.BadRequest(fmt.Sprintf("request body exceeds %d bytes", limit), nil)
			c.AbortWithStatusJSON(http.StatusBadRequest, apperr.NewResponse(err))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
