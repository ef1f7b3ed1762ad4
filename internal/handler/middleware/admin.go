package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"referralhub/pkg/response"
)

// AdminAuth lets only allow-listed referrers reach code moderation routes.
// Must be used after JWTAuth.
func AdminAuth(adminUserIDs []string, logger *zap.Logger) gin.HandlerFunc {
	allowed := make(map[uuid.UUID]struct{}, len(adminUserIDs))
	for _, raw := range adminUserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.Warn("ignoring malformed admin user id", zap.String("user_id", raw))
			continue
		}
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		referrerID, ok := ReferrerID(c)
		if !ok {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		if _, isAdmin := allowed[referrerID]; !isAdmin {
			logger.Warn("admin access denied",
				zap.String("user_id", referrerID.String()),
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
			)
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
