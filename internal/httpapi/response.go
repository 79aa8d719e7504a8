package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"classroomd/internal/apperr"
	"classroomd/internal/logger"
)

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err to an HTTP status and a safe client-facing
// payload. An *apperr.Error carries its own status and message; any
// other error is reported as an opaque 500 so internals never leak.
func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if ae, ok := apperr.As(err); ok {
		writeJSON(w, ae.Status(), map[string]string{"error": ae.Message})
		return
	}
	logger.GetLogger(ctx).Error("unhandled error", zap.String("op", op), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidInput("decodeJSON", "malformed request body: "+err.Error())
	}
	return nil
}
