// Package authz decides whether an actor may perform an action on an entity.
// Decisions come from a static role table; nothing here touches storage.
package authz

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
)

// Actor is the resolved identity behind a request.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.Role
	BranchID *uuid.UUID
}

// Valid reports whether the actor carries a user and a known role.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}

type Action string

const (
	ActionCreateOrder  Action = "repair.create"
	ActionViewOrder    Action = "repair.view"
	ActionAssign       Action = "repair.assign"
	ActionStart        Action = "repair.start"
	ActionComplete     Action = "repair.complete"
	ActionFail         Action = "repair.fail"
	ActionCreateBatch  Action = "batch.create"
	ActionViewBatch    Action = "batch.view"
	ActionPickupBatch  Action = "batch.pickup"
	ActionReceiveBatch Action = "batch.receive"
)

// Entity carries the attributes of the target that identity-bound rules need.
type Entity struct {
	TechnicianID *uuid.UUID
	BranchID     *uuid.UUID
}

// ForOrder builds the guard view of a repair order.
func ForOrder(technicianID *uuid.UUID, branchID uuid.UUID) Entity {
	return Entity{TechnicianID: technicianID, BranchID: &branchID}
}

var (
	allRoles   = []enums.Role{enums.RoleSuperAdmin, enums.RoleHQAdmin, enums.RoleBranchAdmin, enums.RoleTechnician, enums.RoleCourier}
	hqRoles    = []enums.Role{enums.RoleSuperAdmin, enums.RoleHQAdmin}
	scanRoles  = []enums.Role{enums.RoleSuperAdmin, enums.RoleHQAdmin, enums.RoleBranchAdmin, enums.RoleCourier}
	techRoles  = []enums.Role{enums.RoleTechnician}
	staffRoles = []enums.Role{enums.RoleSuperAdmin, enums.RoleHQAdmin, enums.RoleBranchAdmin}
)

var roleTable = map[Action][]enums.Role{
	ActionCreateOrder:  staffRoles,
	ActionViewOrder:    allRoles,
	ActionAssign:       hqRoles,
	ActionStart:        techRoles,
	ActionComplete:     techRoles,
	ActionFail:         techRoles,
	ActionCreateBatch:  staffRoles,
	ActionViewBatch:    allRoles,
	ActionPickupBatch:  scanRoles,
	ActionReceiveBatch: scanRoles,
}

// technician actions only apply to the technician the order is assigned to.
var technicianBound = map[Action]bool{
	ActionStart:    true,
	ActionComplete: true,
	ActionFail:     true,
}

// CanPerform reports whether actor may perform action on entity.
func CanPerform(actor Actor, action Action, entity Entity) bool {
	if !actor.Valid() {
		return false
	}
	allowed, ok := roleTable[action]
	if !ok || !hasRole(allowed, actor.Role) {
		return false
	}
	if technicianBound[action] {
		if entity.TechnicianID == nil || *entity.TechnicianID != actor.UserID {
			return false
		}
	}
	if action == ActionCreateOrder && actor.Role == enums.RoleBranchAdmin {
		if actor.BranchID == nil || entity.BranchID == nil || *actor.BranchID != *entity.BranchID {
			return false
		}
	}
	return true
}

// Require is CanPerform returning a FORBIDDEN error on denial.
func Require(actor Actor, action Action, entity Entity) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity is required")
	}
	if CanPerform(actor, action, entity) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor may not perform this action").
		WithDetails(map[string]any{
			"action": string(action),
			"role":   string(actor.Role),
		})
}

// AllowedRoles lists the roles the table admits for action.
func AllowedRoles(action Action) []enums.Role {
	roles := roleTable[action]
	out := make([]enums.Role, len(roles))
	copy(out, roles)
	return out
}

func hasRole(roles []enums.Role, role enums.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
