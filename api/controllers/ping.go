package controllers

import (
	"net/http"

	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the identity the access token resolved to.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{
			"scope":   "private",
			"status":  "ok",
			"user_id": middleware.UserIDFromContext(r.Context()),
			"role":    middleware.RoleFromContext(r.Context()),
		}
		if branch := middleware.BranchIDFromContext(r.Context()); branch != "" {
			payload["branch_id"] = branch
		}
		responses.WriteSuccess(w, payload)
	}
}
