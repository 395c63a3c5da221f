package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/pkg/jwt"
	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// context keys shared with handler.MustGetIdentityID
const (
	identityIDKey = "identity_id"
	usernameKey   = "username"
)

// CapabilityChecker answers whether an identity holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, identityID int64, capability string) (bool, error)
}

// JWTAuth verifies "Authorization: Bearer <token>" and stores the caller's identity.
func JWTAuth(jwtMgr *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "missing Authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, 10002, "malformed Authorization header")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, 10002, "token invalid or expired")
			c.Abort()
			return
		}

		c.Set(identityIDKey, claims.IdentityID)
		c.Set(usernameKey, claims.Username)

		c.Next()
	}
}

// RequireCapability lets the request through only if the caller's roles grant capability.
// Capabilities are read from the store on every request, so role changes apply without a new token.
func RequireCapability(checker CapabilityChecker, capability string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(identityIDKey)
		id, ok := v.(int64)
		if !exists || !ok {
			response.Unauthorized(c, 10002, "not authenticated")
			c.Abort()
			return
		}

		allowed, err := checker.HasCapability(c.Request.Context(), id, capability)
		if err != nil {
			logger.Error("capability lookup failed",
				zap.Int64("identity_id", id), zap.String("capability", capability), zap.Error(err))
			response.InternalError(c)
			c.Abort()
			return
		}
		if !allowed {
			response.Forbidden(c, 10003, "missing capability "+capability)
			c.Abort()
			return
		}

		c.Next()
	}
}
