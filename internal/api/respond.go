package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// handleError maps an error kind to its HTTP status. Errors without a kind
// are logged and reported as 500 without details.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := domain.KindOf(err)
	switch {
	case errors.Is(kind, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(kind, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrVersionConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "retry", err.Error())
	case errors.Is(kind, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(kind, domain.ErrFailedPrecondition):
		writeError(w, http.StatusPreconditionFailed, "failed_precondition", err.Error())
	default:
		log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func parseSlot(req SlotRequest) (domain.Slot, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return domain.Slot{}, err
	}
	start, err := domain.ParseClock(req.StartTime)
	if err != nil {
		return domain.Slot{}, err
	}
	end, err := domain.ParseClock(req.EndTime)
	if err != nil {
		return domain.Slot{}, err
	}
	return domain.Slot{Date: date, Start: start, End: end}, nil
}

func slotRequest(s domain.Slot) SlotRequest {
	return SlotRequest{Date: s.Date.String(), StartTime: s.Start.String(), EndTime: s.End.String()}
}
