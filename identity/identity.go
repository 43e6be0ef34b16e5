package identity

import (
	"time"

	"github.com/nimbusadmin/console-sdk/internal/utils"
)

// Well-known console roles. Realm roles are platform-wide; client roles are
// scoped to the console's own OAuth client.
const (
	RolePlatformAdmin = "platform_admin"
	RoleOrgAdmin      = "org_admin"
	RoleOrgMember     = "org_member"
	RoleOrgAuditor    = "org_auditor"
)

// Identity is the parsed user identity projected from the active credential:
// either a local JWT payload or an OIDC profile's claims. It is recomputed
// whenever the active credential changes and never persisted.
type Identity struct {
	Subject       string
	Email         string
	Name          string
	RealmRoles    []string
	ClientRoles   []string
	OrgID         string
	TeamIDs       []string
	EmailVerified bool
	ExpiresAt     time.Time
}

// FromClaims derives an Identity from a decoded token payload. clientID
// selects which resource_access entry supplies the client roles. Returns
// nil for nil claims, so a failed decode propagates cleanly as "no
// identity".
func FromClaims(claims map[string]any, clientID string) *Identity {
	if claims == nil {
		return nil
	}

	id := &Identity{}
	id.Subject, _ = claims["sub"].(string)
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	id.OrgID, _ = claims["org_id"].(string)
	id.EmailVerified, _ = claims["email_verified"].(bool)

	if teams, ok := claims["team_ids"].([]any); ok {
		id.TeamIDs = utils.ToStringSlice(teams)
	}
	if exp, ok := claims["exp"].(float64); ok {
		id.ExpiresAt = time.Unix(int64(exp), 0)
	}

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"].([]any); ok {
			id.RealmRoles = utils.ToStringSlice(roles)
		}
	}
	if resourceAccess, ok := claims["resource_access"].(map[string]any); ok {
		if client, ok := resourceAccess[clientID].(map[string]any); ok {
			if roles, ok := client["roles"].([]any); ok {
				id.ClientRoles = utils.ToStringSlice(roles)
			}
		}
	}

	return id
}

// HasRole reports whether the identity carries the role in either its realm
// or client role set.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.RealmRoles {
		if r == role {
			return true
		}
	}
	for _, r := range id.ClientRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (id *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if id.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the identity carries every one of the roles.
// Vacuously true for an empty list.
func (id *Identity) HasAllRoles(roles ...string) bool {
	for _, role := range roles {
		if !id.HasRole(role) {
			return false
		}
	}
	return true
}

// DisplayName returns the best human-readable label for the identity:
// name, then email, then subject.
func (id *Identity) DisplayName() string {
	if id == nil {
		return ""
	}
	if id.Name != "" {
		return id.Name
	}
	if id.Email != "" {
		return id.Email
	}
	return id.Subject
}
