package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/services"
	"marketanalytics/webclient/internal/store"
)

const storeKey = "workspace_store"

// WorkspaceToken returns the workspace token from the :token path
// parameter, the X-Workspace-Token header or the token query parameter.
func WorkspaceToken(c *gin.Context) string {
	if token := c.Param("token"); token != "" {
		return token
	}
	if token := c.GetHeader("X-Workspace-Token"); token != "" {
		return token
	}
	return c.Query("token")
}

// ValidateWorkspace resolves the request's workspace and stores its action
// store in the context.
func ValidateWorkspace(workspaces *services.WorkspaceService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := WorkspaceToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace token required"})
			return
		}

		st, err := workspaces.Get(c.Request.Context(), token)
		if errors.Is(err, services.ErrWorkspaceNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workspace not found or expired"})
			return
		}
		if err != nil {
			logger.Error("workspace lookup failed", zap.String("workspace", token), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "workspace storage unavailable"})
			return
		}

		c.Set("workspace_token", token)
		c.Set(storeKey, st)
		c.Next()
	}
}

// Store returns the action store set by ValidateWorkspace.
func Store(c *gin.Context) *store.Store {
	st, _ := c.MustGet(storeKey).(*store.Store)
	return st
}
