package controllers

import (
	"net/http"

	"github.com/angelmondragon/repairhub-backend/api/responses"
	"github.com/angelmondragon/repairhub-backend/internal/users"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
)

// ListTechnicians returns the assignable technicians for HQ dispatch screens.
func ListTechnicians(directory users.Directory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if directory == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user directory unavailable"))
			return
		}
		techs, err := directory.ListTechnicians(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": techs})
	}
}
