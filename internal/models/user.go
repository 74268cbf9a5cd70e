package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleFinance    UserRole = "FINANCE"
	RoleStaff      UserRole = "STAFF"
)

// CanManageBilling reports whether the role may run state-mutating billing actions.
func (r UserRole) CanManageBilling() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleFinance:
		return true
	}
	return false
}
