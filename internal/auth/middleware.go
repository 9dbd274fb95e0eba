package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// Require enforces a bearer JWT signed with HS256.
func Require(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, signingKey, issuer)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Optional attaches claims when a valid bearer token is present and lets the
// request through either way. Check-in routes use this: a scanner without a
// principal may still identify itself through the scan payload.
func Optional(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, signingKey, issuer); ok {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

// FromContext returns the claims attached by Require or Optional.
func FromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func bearerClaims(c *gin.Context, signingKey, issuer string) (Claims, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return Claims{}, false
	}
	claims, err := Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer)
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}
