package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwtpkg "referralhub/pkg/jwt"
	"referralhub/pkg/response"
)

// ContextKeyReferrerID holds the uuid.UUID of the authenticated referrer.
const ContextKeyReferrerID = "referrer_id"

// JWTAuth admits requests carrying a valid access token and stores the token subject
// as the referrer ID for the dashboard and code issuance routes.
func JWTAuth(jwtManager *jwtpkg.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}

		claims, err := jwtManager.Validate(token)
		if err != nil || claims.TokenType != jwtpkg.TokenTypeAccess {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		referrerID, err := uuid.Parse(claims.Subject)
		if err != nil || referrerID == uuid.Nil {
			response.Unauthorized(c, "token subject is not a user id")
			c.Abort()
			return
		}

		c.Set(ContextKeyReferrerID, referrerID)
		c.Next()
	}
}

// ReferrerID returns the referrer stored by JWTAuth.
func ReferrerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextKeyReferrerID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
