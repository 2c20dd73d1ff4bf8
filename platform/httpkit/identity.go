// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity represents the caller's identity on the production floor.
// Users are logical floor identities (an admin console, a worker badge),
// not accounts; resolving them never rejects a request.
type Identity interface {
	// UserID returns the caller's logical user ID.
	UserID() string
	// Roles returns the caller's roles.
	Roles() []string
	// HasRole checks if the caller has a specific role.
	HasRole(role string) bool
	// IsKnown returns true if a user ID could be resolved.
	IsKnown() bool
}

type identity struct {
	userID string
	roles  []string
}

func (i *identity) UserID() string {
	return i.userID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsKnown() bool {
	return i.userID != ""
}

// GetIdentity extracts the Identity from a Gin context.
// A token-derived identity wins; otherwise the X-User-ID header or the
// userId query parameter is used.
func GetIdentity(c *gin.Context) Identity {
	if userID, ok := c.Get(ContextUserIDKey); ok {
		if uid, ok := userID.(string); ok && uid != "" {
			var roleList []string
			if roles, ok := c.Get(ContextRolesKey); ok {
				roleList, _ = roles.([]string)
			}
			return &identity{userID: uid, roles: roleList}
		}
	}

	uid := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if uid == "" {
		uid = strings.TrimSpace(c.Query("userId"))
	}
	return &identity{userID: uid}
}

// ActorOr returns the caller's user ID, or fallback when none is known.
func ActorOr(c *gin.Context, fallback string) string {
	if id := GetIdentity(c); id.IsKnown() {
		return id.UserID()
	}
	return strings.TrimSpace(fallback)
}
