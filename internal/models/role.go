package models

// GlobalRole is the role on the user record itself, distinct from any
// per-team role. admin and super_admin are platform-level escape hatches
// that bypass team membership checks.
type GlobalRole string

const (
	GlobalRoleMember     GlobalRole = "member"
	GlobalRoleOwner      GlobalRole = "owner"
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleSuperAdmin GlobalRole = "super_admin"
)

// Valid reports whether the role is one of the closed set.
func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalRoleMember, GlobalRoleOwner, GlobalRoleAdmin, GlobalRoleSuperAdmin:
		return true
	}
	return false
}

// Elevated reports whether the role bypasses per-team membership checks.
func (r GlobalRole) Elevated() bool {
	return r == GlobalRoleAdmin || r == GlobalRoleSuperAdmin
}

// TeamRole is the role on a membership row, scoped to one team.
type TeamRole string

const (
	TeamRoleMember TeamRole = "member"
	TeamRoleOwner  TeamRole = "owner"
)

// Valid reports whether the role is one of the closed set.
func (r TeamRole) Valid() bool {
	return r == TeamRoleMember || r == TeamRoleOwner
}

// InvitationStatus tracks the invitation lifecycle. Deletion removes the row
// rather than storing a state.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)
