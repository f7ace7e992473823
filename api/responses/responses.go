package responses

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
)

// correlationKeys are copied from error details into the log entry so a
// failed batch or order can be found without decoding the response.
var correlationKeys = []string{"order_id", "order_ids", "batch_no"}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Untyped errors are reported
// as INTERNAL_ERROR and never leak their text to the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = pkgerrors.New(pkgerrors.CodeInternal, "nil error written to response")
	}
	public := pkgerrors.Resolve(err)

	if logg != nil {
		fields := pkgerrors.Dump(err).LogFields()
		if details, ok := pkgerrors.As(err).Details().(map[string]any); ok {
			for _, key := range correlationKeys {
				if v, ok := details[key]; ok {
					fields[key] = v
				}
			}
		}
		logg.Error(logg.WithFields(ctx, fields), "request.error", err)
	}

	writeJSON(w, public.Status, ErrorEnvelope{Error: APIError{
		Code:    string(public.Code),
		Message: public.Message,
		Details: public.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
