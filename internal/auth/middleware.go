package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is accepted as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// GinAuth rejects requests without a valid token with 401.
func (a *Authenticator) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		if err := a.Check(tokenFrom(c.Request)); err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="relaunchr"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// tokenFrom extracts the token from "Authorization: Bearer <t>" or X-API-Key.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}
