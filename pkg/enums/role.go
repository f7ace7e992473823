package enums

import "slices"

// Role is the platform role carried on every access token.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleHQAdmin     Role = "HQ_ADMIN"
	RoleBranchAdmin Role = "BRANCH_ADMIN"
	RoleTechnician  Role = "TECHNICIAN"
	RoleCourier     Role = "COURIER"
)

var roles = []Role{RoleSuperAdmin, RoleHQAdmin, RoleBranchAdmin, RoleTechnician, RoleCourier}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return slices.Contains(roles, r) }

// IsHQ reports whether the role operates at hub scope.
func (r Role) IsHQ() bool {
	return r == RoleSuperAdmin || r == RoleHQAdmin
}

func ParseRole(value string) (Role, error) {
	return parse("role", roles, value)
}
