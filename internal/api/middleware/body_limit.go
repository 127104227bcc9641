package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LimitBodySize caps how much of a request body handlers can read, so an
// oversized upload fails instead of buffering unbounded input. Reads past the
// cap surface as *http.MaxBytesError.
func LimitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
