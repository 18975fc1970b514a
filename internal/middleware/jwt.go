package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/srcf/lightbluetent/internal/auth"
	"github.com/srcf/lightbluetent/pkg/response"
)

const (
	// ContextPrincipal is the key for the signed-in CRSid in gin context.
	ContextPrincipal = "principal"
	// CookiePrincipal carries the principal token for browser sessions.
	CookiePrincipal = auth.CookieName
)

// Principal validates the principal token when one is presented and stores the CRSid in
// context. Anonymous requests pass through; an invalid token is rejected.
func Principal(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if token == "" {
			token, _ = c.Cookie(CookiePrincipal)
		}
		if token == "" {
			c.Next()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextPrincipal, claims.CRSid())
		c.Next()
	}
}

// RequirePrincipal rejects anonymous requests.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalFrom(c) == "" {
			response.Unauthorized(c, "sign in required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the signed-in CRSid, or "" for anonymous requests.
func PrincipalFrom(c *gin.Context) string {
	return c.GetString(ContextPrincipal)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
