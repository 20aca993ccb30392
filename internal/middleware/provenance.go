package middleware

import (
	"github.com/stashd/stashd-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

// tokenPrefixLen is how much of the presented credential is kept for
// identification. Enough to correlate, never enough to replay.
const tokenPrefixLen = 8

// Provenance captures where a write request came from and attaches it
// to the gin context for the history writer. The X-Stashd-Source header
// lets non-web clients (CLI, browser extension) identify themselves.
func Provenance() gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.GetHeader("X-Stashd-Source")
		if source == "" {
			source = "web"
		}

		prov := domain.Provenance{Source: source}
		if raw, ok := c.Get("rawToken"); ok {
			if token, ok := raw.(string); ok && token != "" {
				prov.AuthType = "jwt"
				prov.TokenPrefix = tokenPrefix(token)
			}
		}

		c.Set("provenance", prov)
		c.Next()
	}
}

// GetProvenance extracts the request provenance from context.
func GetProvenance(c *gin.Context) domain.Provenance {
	if v, ok := c.Get("provenance"); ok {
		if prov, ok := v.(domain.Provenance); ok {
			return prov
		}
	}
	return domain.Provenance{Source: "web"}
}

func tokenPrefix(token string) string {
	if len(token) <= tokenPrefixLen {
		return token
	}
	return token[:tokenPrefixLen]
}
