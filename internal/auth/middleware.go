// Package auth validates the gateway's static bearer token, the same
// single-shared-secret model as the FastAPI service it fronts.
package auth

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/b-snaas/vllm-gateway/internal/apierrors"
)

// Middleware validates requests against a single configured API token.
type Middleware struct {
	apiToken string
}

// NewMiddleware builds a Middleware for apiToken. An empty apiToken disables
// auth entirely, matching the upstream's behavior when API_TOKEN is unset.
func NewMiddleware(apiToken string) *Middleware {
	return &Middleware{apiToken: apiToken}
}

// RequireToken validates the "Bearer <token>" Authorization header against
// the configured API token using a constant-time comparison.
func (m *Middleware) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiToken == "" {
			c.Next()
			return
		}

		expected := "Bearer " + m.apiToken
		got := c.GetHeader("Authorization")

		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			apierrors.AbortUnauthorized(c, "Unauthorized")
			return
		}

		c.Next()
	}
}
