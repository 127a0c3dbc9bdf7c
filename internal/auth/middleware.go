package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartattend/internal/identity"
)

const callerKey = "caller"

// Users resolves token subjects to accounts.
type Users interface {
	Get(id string) (identity.User, bool)
}

// UserAuth enforces bearer access tokens and stores the calling user in the
// gin context. Websocket upgrades may pass the token as the "token" query
// parameter since browsers cannot set headers on them.
func UserAuth(signingKey, issuer string, users Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" && c.IsWebsocket() {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := Parse(token, signingKey, issuer)
		if err != nil || claims.Kind != KindAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		u, ok := users.Get(claims.Subject)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.Set(callerKey, u)
		c.Next()
	}
}

func bearer(authz string) string {
	const prefix = "bearer "
	if len(authz) < len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(prefix):])
}

// Caller returns the user set by UserAuth.
func Caller(c *gin.Context) (identity.User, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return identity.User{}, false
	}
	u, ok := v.(identity.User)
	return u, ok
}
