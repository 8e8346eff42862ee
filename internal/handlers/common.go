package handlers

import (
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/middleware"
	"clinic-app-server/internal/utils"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// multipartForm parses the request form. A body cut off by the body limit is
// reported as too large, any other parse failure as an invalid form.
func multipartForm(c *gin.Context) (*multipart.Form, error) {
	form, err := c.MultipartForm()
	if err == nil {
		return form, nil
	}
	if middleware.IsBodyTooLarge(err) {
		return nil, utils.WrapError(utils.KindInvalidInput, "Request body is too large", err)
	}
	return nil, utils.WrapError(utils.KindInvalidInput, "Invalid multipart form", err)
}

// logFailure logs server-side failures. Client errors are left to the request log.
func logFailure(logger *zap.Logger, c *gin.Context, msg string, err error) {
	kind := utils.KindOf(err)
	if kind != utils.KindInternalError && kind != utils.KindUploadFailed {
		return
	}
	logger.Error(msg,
		zap.String("path", c.Request.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}
