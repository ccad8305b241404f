package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/service"
)

// respondError renders the uniform error body. Anything that is not an
// AuthError is an upstream failure: logged with its cause, reported to the
// client without it.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, gin.H{"detail": authErr.Detail})
		return
	}
	if logger == nil {
		logger = zap.L()
	}
	logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}
