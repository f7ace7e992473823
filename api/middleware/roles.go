package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/repairhub-backend/api/responses"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
)

// RequireRole gates a route group on the caller's role. It is a coarse
// routing filter; per-operation rules live in the authorization guard.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(roles, ActorFromContext(r.Context()).Role) {
				next.ServeHTTP(w, r)
				return
			}
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for this resource").
					WithDetails(map[string]any{"allowed_roles": roles}))
		})
	}
}
