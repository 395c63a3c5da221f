package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// CORS lets the planning UI at allowOrigins call the API with a bearer
// token. Content-Disposition is exposed so exports keep their file name.
// Preflights from any other origin are refused outright.
func CORS(allowOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, ok := allowed[origin]

		if origin != "" {
			c.Header("Vary", "Origin")
		}
		if ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Expose-Headers", "Content-Disposition, "+requestIDHeader)
		}

		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}

		if !ok {
			logger.Debug("cors preflight refused", zap.String("origin", origin))
			response.Forbidden(c, 10003, "origin not allowed")
			c.Abort()
			return
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}
