package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

func bookAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slot, err := parseSlot(req.SlotRequest)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		id, err := svc.Book(r.Context(), req.PatientID, req.PractitionerID, slot)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	}
}

func cancelAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAll(r.Context())
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listPatientAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByPatient(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listPractitionerAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByPractitioner(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func upcomingAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.UpcomingForPatient(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func patientHistoryHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := svc.PatientHistory(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func resultInput(req ResultRequest) appointment.ResultInput {
	return appointment.ResultInput{
		Description:     req.Description,
		Diagnosis:       req.Diagnosis,
		Recommendations: req.Recommendations,
		RecordedAt:      req.RecordedAt,
	}
}

func addResultHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResultRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.AddResult(r.Context(), chi.URLParam(r, "id"), resultInput(req))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, appt.Result)
	}
}

func updateResultHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResultRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateResult(r.Context(), chi.URLParam(r, "id"), resultInput(req))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, appt.Result)
	}
}

func getResultHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetResult(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
