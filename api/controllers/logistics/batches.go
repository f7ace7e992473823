package logistics

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/api/responses"
	"github.com/angelmondragon/repairhub-backend/api/validators"
	internallogistics "github.com/angelmondragon/repairhub-backend/internal/logistics"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
)

// createBatchRequest also takes orderIds for camelCase clients.
type createBatchRequest struct {
	internallogistics.CreateBatchInput
	OrderIDsCamel []uuid.UUID `json:"orderIds"`
}

func (r *createBatchRequest) Normalize() {
	if len(r.OrderIDs) == 0 {
		r.OrderIDs = r.OrderIDsCamel
	}
}

// CreateBatch consolidates eligible orders into a new transport batch.
func CreateBatch(svc internallogistics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "logistics service unavailable"))
			return
		}
		var req createBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), req.CreateBatchInput)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ListBatches returns a cursor page of batches, newest first.
func ListBatches(svc internallogistics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "logistics service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internallogistics.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBatchStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("direction")); raw != "" {
			direction, err := enums.ParseBatchDirection(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction filter"))
				return
			}
			filters.Direction = &direction
		}

		page, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// BatchDetail returns a batch with its ordered manifest.
func BatchDetail(svc internallogistics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "logistics service unavailable"))
			return
		}
		batchNo := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "batchNo")))
		if batchNo == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "batch number is required"))
			return
		}
		view, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), batchNo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
