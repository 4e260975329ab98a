package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/practitioner"
)

func registerPractitionerHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PractitionerRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := svc.Register(r.Context(), practitioner.Input{Name: req.Name, Specialty: req.Specialty})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
	}
}

func updatePractitionerHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PractitionerRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Update(r.Context(), chi.URLParam(r, "id"), practitioner.Input{Name: req.Name, Specialty: req.Specialty})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func deletePractitionerHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getPractitionerHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listPractitionersHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.List(r.Context())
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func searchPractitionersHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.SearchBySpecialty(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func addSlotHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slot, err := parseSlot(req)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		added, err := svc.AddSlot(r.Context(), chi.URLParam(r, "id"), slot.Date, slot.Start, slot.End)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, added)
	}
}

// addSlotsHandler adds each slot independently. Entries that do not parse
// are reported as rejected alongside the ones the registry refused.
func addSlotsHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req []SlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "at least one slot is required")
			return
		}

		resp := BulkSlotsResponse{Added: domain.Slots{}, Rejected: []RejectedSlot{}}
		var candidates []domain.Slot
		for _, sr := range req {
			slot, err := parseSlot(sr)
			if err != nil {
				resp.Rejected = append(resp.Rejected, RejectedSlot{SlotRequest: sr, Reason: err.Error()})
				continue
			}
			candidates = append(candidates, slot)
		}

		if len(candidates) > 0 {
			res, err := svc.AddSlots(r.Context(), chi.URLParam(r, "id"), candidates)
			if err != nil {
				handleError(w, r, log, err)
				return
			}
			resp.Added = res.Added
			for _, rej := range res.Rejected {
				resp.Rejected = append(resp.Rejected, RejectedSlot{
					SlotRequest: slotRequest(rej.Slot),
					Reason:      rej.Reason,
				})
			}
		}

		resp.AddedCount = len(resp.Added)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func listSpecialtiesHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialties, err := svc.ListSpecialties(r.Context())
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, specialties)
	}
}

func removeSlotHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		date, err := domain.ParseDate(q.Get("date"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		start, err := domain.ParseClock(q.Get("start"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		if err := svc.RemoveSlot(r.Context(), chi.URLParam(r, "id"), date, start); err != nil {
			handleError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listSlotsHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func listAvailableSlotsHandler(svc PractitionerService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListAvailableSlots(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}
