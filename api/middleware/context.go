package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/internal/authz"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

type identityKey struct{}

// WithIdentity stores the authenticated caller on ctx.
func WithIdentity(ctx context.Context, userID uuid.UUID, role enums.Role, branchID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actor := authz.Actor{UserID: userID, Role: role}
	if branchID != nil {
		branch := *branchID
		actor.BranchID = &branch
	}
	return context.WithValue(ctx, identityKey{}, actor)
}

// ActorFromContext returns the caller seeded by Auth, or the zero Actor which
// the guard rejects.
func ActorFromContext(ctx context.Context) authz.Actor {
	if ctx == nil {
		return authz.Actor{}
	}
	actor, _ := ctx.Value(identityKey{}).(authz.Actor)
	return actor
}

func UserIDFromContext(ctx context.Context) string {
	if id := ActorFromContext(ctx).UserID; id != uuid.Nil {
		return id.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	return string(ActorFromContext(ctx).Role)
}

func BranchIDFromContext(ctx context.Context) string {
	if branch := ActorFromContext(ctx).BranchID; branch != nil {
		return branch.String()
	}
	return ""
}
