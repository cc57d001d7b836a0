package rbac

// Role names. Keep these stable; they are embedded in issued tokens.
const (
	RoleOperator = "operator" // anchors documents, resubmits attempts
	RoleAuditor  = "auditor"  // appends status records
	RoleViewer   = "viewer"
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Known reports whether role is one of the defined roles.
func Known(role string) bool {
	switch role {
	case RoleOperator, RoleAuditor, RoleViewer, RoleAdmin:
		return true
	}
	return false
}
