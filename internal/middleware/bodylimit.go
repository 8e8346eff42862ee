package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-app-server/internal/utils"
)

// MultipartOverhead is allowed on top of a file cap for boundaries and text fields.
const MultipartOverhead = 1 << 20

// BodyLimit caps the request body at limit bytes. A declared Content-Length
// over the limit is rejected before the handler runs; otherwise reads past the
// limit fail and IsBodyTooLarge reports them.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			utils.RespondError(c, BodyTooLargeError(limit))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// BodyTooLargeError is the InvalidInput error for a body over limit bytes.
func BodyTooLargeError(limit int64) *utils.AppError {
	return utils.NewError(utils.KindInvalidInput, fmt.Sprintf("Request body exceeds the %d MB limit", limit>>20))
}

// IsBodyTooLarge reports whether err came from reading past a BodyLimit.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}
