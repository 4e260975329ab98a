package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/patient"
	"github.com/hackgods/clinic-appointments/internal/practitioner"
)

type PractitionerService interface {
	Register(ctx context.Context, in practitioner.Input) (string, error)
	Update(ctx context.Context, id string, in practitioner.Input) (*domain.Practitioner, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Practitioner, error)
	List(ctx context.Context) ([]*domain.Practitioner, error)
	SearchBySpecialty(ctx context.Context, substr string) ([]*domain.Practitioner, error)
	ListSpecialties(ctx context.Context) ([]string, error)
	AddSlot(ctx context.Context, id string, date domain.Date, start, end domain.Clock) (domain.Slot, error)
	AddSlots(ctx context.Context, id string, slots []domain.Slot) (practitioner.BulkResult, error)
	RemoveSlot(ctx context.Context, id string, date domain.Date, start domain.Clock) error
	ListAvailableSlots(ctx context.Context, id string) (domain.Slots, error)
	ListSlots(ctx context.Context, id string) (domain.Slots, error)
}

type PatientService interface {
	Register(ctx context.Context, in patient.Input) (string, error)
	Update(ctx context.Context, id string, in patient.Input) (*domain.Patient, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Patient, error)
	List(ctx context.Context) ([]*domain.Patient, error)
	SearchByName(ctx context.Context, substr string) ([]*domain.Patient, error)
	Count(ctx context.Context) (int64, error)
}

type AppointmentService interface {
	Book(ctx context.Context, patientID, practitionerID string, requested domain.Slot) (string, error)
	Cancel(ctx context.Context, id string) (*domain.Appointment, error)
	AddResult(ctx context.Context, id string, in appointment.ResultInput) (*domain.Appointment, error)
	UpdateResult(ctx context.Context, id string, in appointment.ResultInput) (*domain.Appointment, error)
	Get(ctx context.Context, id string) (*domain.Appointment, error)
	GetResult(ctx context.Context, id string) (*domain.MedicalResult, error)
	ListByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error)
	UpcomingForPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error)
	PatientHistory(ctx context.Context, patientID string) (*appointment.History, error)
	ListByPractitioner(ctx context.Context, practitionerID string) ([]*domain.Appointment, error)
	ListAll(ctx context.Context) ([]*domain.Appointment, error)
}

type RouterConfig struct {
	Practitioners PractitionerService
	Patients      PatientService
	Appointments  AppointmentService
	Dependencies  []Dependency
	Logger        *zap.Logger
	Env           string
	Version       string
	RateLimitRPS  int
	CORSOrigins   []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger.Named("http")
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}

	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/practitioners", func(r chi.Router) {
		svc := cfg.Practitioners
		r.Post("/", registerPractitionerHandler(svc, log))
		r.Get("/", listPractitionersHandler(svc, log))
		r.Get("/search", searchPractitionersHandler(svc, log))
		r.Get("/specialties", listSpecialtiesHandler(svc, log))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getPractitionerHandler(svc, log))
			r.Put("/", updatePractitionerHandler(svc, log))
			r.Delete("/", deletePractitionerHandler(svc, log))
			r.Get("/slots", listSlotsHandler(svc, log))
			r.Post("/slots", addSlotHandler(svc, log))
			r.Post("/slots/bulk", addSlotsHandler(svc, log))
			r.Delete("/slots", removeSlotHandler(svc, log))
			r.Get("/slots/available", listAvailableSlotsHandler(svc, log))
			r.Get("/appointments", listPractitionerAppointmentsHandler(cfg.Appointments, log))
		})
	})

	r.Route("/patients", func(r chi.Router) {
		svc := cfg.Patients
		r.Post("/", registerPatientHandler(svc, log))
		r.Get("/", listPatientsHandler(svc, log))
		r.Get("/search", searchPatientsHandler(svc, log))
		r.Get("/count", countPatientsHandler(svc, log))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getPatientHandler(svc, log))
			r.Put("/", updatePatientHandler(svc, log))
			r.Delete("/", deletePatientHandler(svc, log))
			r.Get("/appointments", listPatientAppointmentsHandler(cfg.Appointments, log))
			r.Get("/appointments/upcoming", upcomingAppointmentsHandler(cfg.Appointments, log))
			r.Get("/history", patientHistoryHandler(cfg.Appointments, log))
		})
	})

	r.Route("/appointments", func(r chi.Router) {
		svc := cfg.Appointments
		r.Post("/", bookAppointmentHandler(svc, log))
		r.Get("/", listAppointmentsHandler(svc, log))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(svc, log))
			r.Post("/cancel", cancelAppointmentHandler(svc, log))
			r.Post("/result", addResultHandler(svc, log))
			r.Put("/result", updateResultHandler(svc, log))
			r.Get("/result", getResultHandler(svc, log))
		})
	})

	return r
}
