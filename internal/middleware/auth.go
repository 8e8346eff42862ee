package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clinic-app-server/internal/models"
	"clinic-app-server/internal/utils"
)

const identityKey = "identity"

// Identity is the authenticated principal bound to a request.
type Identity struct {
	PrincipalID string
	Role        models.Role
	TokenID     string
	ExpiresAt   time.Time
}

// Authenticate checks an Authorization header against the role a route
// requires. denylist may be nil.
func Authenticate(ctx context.Context, tokens *utils.TokenService, denylist utils.Denylist, header string, role models.Role) (*Identity, error) {
	if header == "" {
		return nil, utils.NewError(utils.KindUnauthorized, "Authorization header required")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, utils.NewError(utils.KindUnauthorized, "Invalid authorization header format")
	}

	claims, err := tokens.Verify(parts[1], role)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrMissingSecret), errors.Is(err, utils.ErrUnknownRole):
			return nil, utils.WrapError(utils.KindInternalError, "Server authentication is not configured", err)
		case errors.Is(err, utils.ErrRoleMismatch):
			return nil, utils.WrapError(utils.KindForbidden, "You do not have permission to access this resource", err)
		case errors.Is(err, utils.ErrTokenExpired):
			return nil, utils.WrapError(utils.KindUnauthorized, "Token expired", err)
		default:
			return nil, utils.WrapError(utils.KindUnauthorized, "Invalid token", err)
		}
	}

	identity := &Identity{
		PrincipalID: claims.PrincipalID,
		Role:        claims.Role,
		TokenID:     claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	if denylist != nil && identity.TokenID != "" {
		revoked, err := denylist.IsRevoked(ctx, identity.TokenID)
		if err != nil {
			return nil, utils.WrapError(utils.KindInternalError, "Could not check token status", err)
		}
		if revoked {
			return nil, utils.NewError(utils.KindUnauthorized, "Token has been revoked")
		}
	}
	return identity, nil
}

// RequireRole guards a route group: only bearer tokens issued for role pass.
func RequireRole(tokens *utils.TokenService, denylist utils.Denylist, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := Authenticate(c.Request.Context(), tokens, denylist, c.GetHeader("Authorization"), role)
		if err != nil {
			utils.RespondError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the identity bound by RequireRole.
func GetIdentity(c *gin.Context) (*Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*Identity)
	return identity, ok
}

// GetUserIDFromContext returns the authenticated principal id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		return "", false
	}
	return identity.PrincipalID, true
}

// GetUserRoleFromContext returns the authenticated principal role.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		return "", false
	}
	return identity.Role, true
}
