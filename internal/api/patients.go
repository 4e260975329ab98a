package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/patient"
)

func registerPatientHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := svc.Register(r.Context(), patient.Input{Name: req.Name})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	}
}

func updatePatientHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Update(r.Context(), chi.URLParam(r, "id"), patient.Input{Name: req.Name})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func deletePatientHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getPatientHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listPatientsHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.List(r.Context())
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func searchPatientsHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.SearchByName(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func countPatientsHandler(svc PatientService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.Count(r.Context())
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
