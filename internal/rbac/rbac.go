package rbac

import "trove/api/internal/flow"

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Can reports whether a user with role may perform action on a flow owned by
// ownerID with the given visibility. Owners and admins do everything; others
// may only read public flows.
func Can(userID string, role Role, action Action, ownerID string, visibility flow.Visibility) bool {
	if role == RoleAdmin || (userID != "" && userID == ownerID) {
		return true
	}
	return action == ActionRead && visibility == flow.VisibilityPublic
}

func Normalize(role string) Role {
	if Role(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}
