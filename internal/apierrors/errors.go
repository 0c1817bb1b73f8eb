// Package apierrors sends the gateway's standardized error envelopes. The
// shape follows the FastAPI service this gateway fronts: 401 responses carry
// an "error" field, every other 4xx/5xx carries "detail".
package apierrors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Unauthorized401 is the 401 envelope shape, matching auth_middleware's
// {"error": "Unauthorized"} response in the upstream service.
type Unauthorized401 struct {
	Error string `json:"error"`
}

// Detail is the envelope shape for every non-401 error response.
type Detail struct {
	Detail string `json:"detail"`
}

// AbortUnauthorized sends a 401 with the "error" envelope and aborts.
func AbortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Unauthorized401{Error: message})
}

// AbortBadRequest sends a 400 with the "detail" envelope and aborts.
func AbortBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Detail{Detail: message})
}

// AbortNotFound sends a 404 with the "detail" envelope and aborts.
func AbortNotFound(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, Detail{Detail: message})
}

// AbortConflict sends a 409 with the "detail" envelope and aborts.
func AbortConflict(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusConflict, Detail{Detail: message})
}

// AbortServiceUnavailable sends a 503 with the "detail" envelope and aborts.
// Used when the engine connection itself fails, per the upstream's
// aiohttp.ClientConnectorError handling.
func AbortServiceUnavailable(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, Detail{Detail: message})
}

// AbortGatewayTimeout sends a 504 with the "detail" envelope and aborts.
// Used for both the interactive slot wait ceiling and the engine's own
// asyncio.TimeoutError equivalent.
func AbortGatewayTimeout(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusGatewayTimeout, Detail{Detail: message})
}

// AbortInternal sends a 500 with the "detail" envelope and aborts.
func AbortInternal(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, Detail{Detail: message})
}
