package controllers

import (
	"net/http"

	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes {"error": {"kind", "message"}}. Client errors are logged
// at warn, everything else at error with the wrapped cause.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	appErr := apperrors.From(err)
	fields := []zap.Field{
		zap.String("kind", string(appErr.Kind)),
		zap.String("path", c.FullPath()),
	}
	if rid := c.GetString("request_id"); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if appErr.Err != nil {
		fields = append(fields, zap.Error(appErr.Err))
	}

	if appErr.ClientFacing() {
		logger.Warn(appErr.Message, fields...)
	} else {
		logger.Error(appErr.Message, fields...)
	}

	code := appErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	c.JSON(code, gin.H{"error": gin.H{"kind": appErr.Kind, "message": appErr.Message}})
}
