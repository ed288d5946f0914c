package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/fault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindSlotConflict, fault.KindIllegalTransition:
		return http.StatusConflict
	case fault.KindAuthRequired:
		return http.StatusUnauthorized
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the error envelope. Internal errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	kind := fault.KindOf(err)
	resp := ErrorResponse{
		Success: false,
		Code:    string(kind),
		Message: err.Error(),
	}

	var verr *fault.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	if kind == fault.KindInternal || kind == fault.KindUnavailable {
		log.WithField("request_id", GetRequestID(r.Context())).WithError(err).Error("request failed")
		resp.Message = "internal error"
	}

	writeJSON(w, StatusFor(kind), resp)
}
