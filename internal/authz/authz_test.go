package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
)

func actor(role enums.Role) Actor {
	return Actor{UserID: uuid.New(), Role: role}
}

func TestAssignRestrictedToHQRoles(t *testing.T) {
	entity := ForOrder(nil, uuid.New())

	assert.True(t, CanPerform(actor(enums.RoleHQAdmin), ActionAssign, entity))
	assert.True(t, CanPerform(actor(enums.RoleSuperAdmin), ActionAssign, entity))
	assert.False(t, CanPerform(actor(enums.RoleCourier), ActionAssign, entity))
	assert.False(t, CanPerform(actor(enums.RoleBranchAdmin), ActionAssign, entity))
	assert.False(t, CanPerform(actor(enums.RoleTechnician), ActionAssign, entity))
}

func TestTechnicianActionsRequireIdentityMatch(t *testing.T) {
	tech := actor(enums.RoleTechnician)
	other := uuid.New()

	for _, action := range []Action{ActionStart, ActionComplete, ActionFail} {
		t.Run(string(action), func(t *testing.T) {
			assert.True(t, CanPerform(tech, action, ForOrder(&tech.UserID, uuid.New())))
			assert.False(t, CanPerform(tech, action, ForOrder(&other, uuid.New())))
			assert.False(t, CanPerform(tech, action, ForOrder(nil, uuid.New())))

			hq := actor(enums.RoleHQAdmin)
			assert.False(t, CanPerform(hq, action, ForOrder(&hq.UserID, uuid.New())))
		})
	}
}

func TestScanActionsRoles(t *testing.T) {
	for _, action := range []Action{ActionPickupBatch, ActionReceiveBatch} {
		for _, role := range []enums.Role{enums.RoleCourier, enums.RoleHQAdmin, enums.RoleSuperAdmin, enums.RoleBranchAdmin} {
			assert.True(t, CanPerform(actor(role), action, Entity{}), "%s %s", role, action)
		}
		assert.False(t, CanPerform(actor(enums.RoleTechnician), action, Entity{}))
	}
}

func TestBatchCreateExcludesCourierAndTechnician(t *testing.T) {
	assert.True(t, CanPerform(actor(enums.RoleBranchAdmin), ActionCreateBatch, Entity{}))
	assert.True(t, CanPerform(actor(enums.RoleHQAdmin), ActionCreateBatch, Entity{}))
	assert.False(t, CanPerform(actor(enums.RoleCourier), ActionCreateBatch, Entity{}))
	assert.False(t, CanPerform(actor(enums.RoleTechnician), ActionCreateBatch, Entity{}))
}

func TestBranchAdminCreatesOnlyInOwnBranch(t *testing.T) {
	home := uuid.New()
	elsewhere := uuid.New()
	admin := Actor{UserID: uuid.New(), Role: enums.RoleBranchAdmin, BranchID: &home}

	assert.True(t, CanPerform(admin, ActionCreateOrder, Entity{BranchID: &home}))
	assert.False(t, CanPerform(admin, ActionCreateOrder, Entity{BranchID: &elsewhere}))

	admin.BranchID = nil
	assert.False(t, CanPerform(admin, ActionCreateOrder, Entity{BranchID: &home}))

	assert.True(t, CanPerform(actor(enums.RoleHQAdmin), ActionCreateOrder, Entity{BranchID: &elsewhere}))
}

func TestInvalidActorsAreDenied(t *testing.T) {
	assert.False(t, CanPerform(Actor{Role: enums.RoleSuperAdmin}, ActionViewOrder, Entity{}))
	assert.False(t, CanPerform(Actor{UserID: uuid.New(), Role: "JANITOR"}, ActionViewOrder, Entity{}))
	assert.False(t, CanPerform(actor(enums.RoleSuperAdmin), Action("repair.teleport"), Entity{}))
}

func TestRequireMapsDenialToForbidden(t *testing.T) {
	err := Require(actor(enums.RoleCourier), ActionAssign, Entity{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	err = Require(Actor{Role: enums.RoleHQAdmin}, ActionAssign, Entity{})
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	assert.NoError(t, Require(actor(enums.RoleHQAdmin), ActionAssign, Entity{}))
}

func TestAllowedRolesReturnsCopy(t *testing.T) {
	roles := AllowedRoles(ActionAssign)
	require.Len(t, roles, 2)
	roles[0] = enums.RoleCourier
	assert.False(t, CanPerform(actor(enums.RoleCourier), ActionAssign, Entity{}))
}
