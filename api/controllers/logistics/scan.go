package logistics

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/api/responses"
	"github.com/angelmondragon/repairhub-backend/api/validators"
	"github.com/angelmondragon/repairhub-backend/internal/scan"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
)

const maxCodeLen = 512

// scanRequest carries either the raw QR payload or a typed batch number.
// batchNo is accepted as an alias of batch_no.
type scanRequest struct {
	Code         string `json:"code"`
	BatchNo      string `json:"batch_no"`
	BatchNoCamel string `json:"batchNo"`
}

func (r *scanRequest) Normalize() {
	if strings.TrimSpace(r.BatchNo) == "" {
		r.BatchNo = r.BatchNoCamel
	}
}

func (r scanRequest) value() string {
	if code := validators.SanitizeString(r.Code, maxCodeLen); code != "" {
		return code
	}
	return validators.SanitizeString(r.BatchNo, maxCodeLen)
}

// ScanPreview resolves a scanned code to its batch without changing it.
func ScanPreview(svc scan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		view, err := svc.Preview(r.Context(), middleware.ActorFromContext(r.Context()), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ScanPickup records the courier taking custody of a batch.
func ScanPickup(svc scan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}
		var req scanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Pickup(r.Context(), middleware.ActorFromContext(r.Context()), req.value())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ScanReceive records arrival of a batch and moves every member order.
func ScanReceive(svc scan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}
		var req scanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Receive(r.Context(), middleware.ActorFromContext(r.Context()), req.value())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
