package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/response"
)

// CapabilityResolver returns what the holder of a principal may do.
// Principals without a local record resolve to nil capabilities.
type CapabilityResolver interface {
	Capabilities(ctx context.Context, crsid string) (models.Capabilities, error)
}

// RequirePermission allows only principals whose role grants perm.
// It must run after RequirePrincipal.
func RequirePermission(resolver CapabilityResolver, perm models.Permission, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		crsid := PrincipalFrom(c)
		if crsid == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		caps, err := resolver.Capabilities(c.Request.Context(), crsid)
		if err != nil {
			logger.Error("resolve capabilities", zap.String("crsid", crsid), zap.Error(err))
			response.Internal(c, "failed to check permissions")
			c.Abort()
			return
		}
		if !caps.Has(perm) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
