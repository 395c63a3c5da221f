package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/bod9dzys/BasicWFMbb/pkg/response"
)

// IdentityIDKey is where the auth middleware stores the caller's identity id.
const IdentityIDKey = "identity_id"

// CapabilityChecker answers whether an identity holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, identityID int64, capability string) (bool, error)
}

// MustGetIdentityID extracts the caller's identity id.
// On failure it writes 401 and returns false; callers return immediately.
func MustGetIdentityID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(IdentityIDKey)
	if !exists {
		response.Unauthorized(c, 10002, "not authenticated")
		return 0, false
	}
	id, ok := v.(int64)
	if !ok || id <= 0 {
		response.Unauthorized(c, 10002, "not authenticated")
		return 0, false
	}
	return id, true
}
