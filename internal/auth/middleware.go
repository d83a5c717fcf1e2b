package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/policy"
)

const principalKey = "principal"

// RequireAuth enforces bearer JWT tokens signed with HS256 and stores the
// resolved principal on the request context.
func RequireAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(principalKey, claims.Principal())
		c.Next()
	}
}

// PrincipalFrom returns the principal resolved by RequireAuth. The zero
// principal (unknown role) is returned when the middleware did not run, which
// the policy engine denies across the board.
func PrincipalFrom(c *gin.Context) policy.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return policy.Principal{}
	}
	p, ok := v.(policy.Principal)
	if !ok {
		return policy.Principal{}
	}
	return p
}
