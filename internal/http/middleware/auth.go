// Bearer-token auth for the operator console endpoints.
//
// Visitors are anonymous; everything an agent touches (queue, sessions,
// notifications, the SSE stream) requires a token. Verification is pluggable
// so deployments can swap the static token for a real identity provider.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier validates a bearer token and returns the agent identity.
type TokenVerifier func(token string) (userID string, ok bool)

// StaticTokenVerifier accepts exactly one shared token and attributes every
// call to the agent id supplied alongside it in the X-User-ID header. An
// empty configured token disables auth (dev mode).
func StaticTokenVerifier(token string) TokenVerifier {
	return func(got string) (string, bool) {
		if token == "" {
			return "", true
		}
		if got == token {
			return "", true
		}
		return "", false
	}
}

// RequireAuth extracts the bearer token from the Authorization header (or
// the token query parameter, for EventSource clients that cannot set
// headers), verifies it, and stores the resulting identity under "userID".
// Failures answer 401 with the standard envelope before any handler runs.
func RequireAuth(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		uid, ok := verify(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid or expired token",
			})
			return
		}
		if uid == "" {
			uid = strings.TrimSpace(c.GetHeader("X-User-ID"))
		}
		if uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	}
}

// bearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return c.Query("token")
}
