package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-app-server/internal/utils"
)

// Recovery turns a panic into a 500 response. The stack is logged, never sent.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				utils.RespondError(c, utils.NewError(utils.KindInternalError, "internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
