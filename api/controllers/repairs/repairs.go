package repairs

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/api/responses"
	"github.com/angelmondragon/repairhub-backend/api/validators"
	internalrepairs "github.com/angelmondragon/repairhub-backend/internal/repairs"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
)

const maxReasonLen = 2000

type assignRequest struct {
	TechnicianID      string `json:"technician_id" validate:"required,uuid"`
	TechnicianIDCamel string `json:"technicianId"`
}

func (r *assignRequest) Normalize() {
	if strings.TrimSpace(r.TechnicianID) == "" {
		r.TechnicianID = strings.TrimSpace(r.TechnicianIDCamel)
	}
}

type failRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Create takes in a device at a branch counter.
func Create(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "repairs service unavailable"))
			return
		}
		var input internalrepairs.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// List returns a cursor page of repair orders visible to the caller.
func List(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "repairs service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		page, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func buildFilters(r *http.Request) (internalrepairs.ListFilters, error) {
	var filters internalrepairs.ListFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseRepairOrderStatus(strings.ToUpper(raw))
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	branchID, err := validators.ParseOptionalUUIDQuery(r, "branch_id")
	if err != nil {
		return filters, err
	}
	filters.BranchID = branchID
	technicianID, err := validators.ParseOptionalUUIDQuery(r, "technician_id")
	if err != nil {
		return filters, err
	}
	filters.TechnicianID = technicianID
	return filters, nil
}

// Detail returns an order with its ordered status history.
func Detail(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		detail, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// History returns only the status history of an order.
func History(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		entries, err := svc.History(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": entries})
	}
}

// Assign hands an order at HQ to a technician.
func Assign(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		var req assignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		technicianID, err := uuid.Parse(req.TechnicianID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid technician id"))
			return
		}
		view, err := svc.Assign(r.Context(), middleware.ActorFromContext(r.Context()), orderID, technicianID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Start begins work on an assigned order.
func Start(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.Start(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Complete marks a repair as successful.
func Complete(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.Complete(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Fail records an unsuccessful repair with the technician's reason.
func Fail(svc internalrepairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderIDParam(w, r, svc, logg)
		if !ok {
			return
		}
		var req failRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.SanitizeString(req.Reason, maxReasonLen)
		view, err := svc.Fail(r.Context(), middleware.ActorFromContext(r.Context()), orderID, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func orderIDParam(w http.ResponseWriter, r *http.Request, svc internalrepairs.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "repairs service unavailable"))
		return uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return orderID, true
}
