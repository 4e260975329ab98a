package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type AppointmentStore struct {
	pool *pgxpool.Pool
}

var _ domain.AppointmentStore = (*AppointmentStore)(nil)

func NewAppointmentStore(pool *pgxpool.Pool) *AppointmentStore {
	return &AppointmentStore{pool: pool}
}

const appointmentColumns = `
	id::text, patient_id::text, practitioner_id::text,
	slot_date, start_time, end_time, slot_reserved, state,
	result_description, result_diagnosis, result_recommendations, result_recorded_at,
	version, created_at, updated_at
`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var (
		a               domain.Appointment
		date            pgtype.Date
		start, end      pgtype.Time
		description     *string
		diagnosis       *string
		recommendations *string
		recordedAt      *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&date,
		&start,
		&end,
		&a.Slot.Reserved,
		&a.State,
		&description,
		&diagnosis,
		&recommendations,
		&recordedAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Slot.Date = toDate(date)
	a.Slot.Start = toClock(start)
	a.Slot.End = toClock(end)
	if recordedAt != nil {
		a.Result = &domain.MedicalResult{
			AppointmentID:   a.ID,
			Description:     deref(description),
			Diagnosis:       deref(diagnosis),
			Recommendations: deref(recommendations),
			RecordedAt:      *recordedAt,
		}
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *AppointmentStore) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *AppointmentStore) FindAll(ctx context.Context) ([]*domain.Appointment, error) {
	return s.list(ctx, "")
}

func (s *AppointmentStore) FindByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	return s.list(ctx, `WHERE patient_id = $1`, patientID)
}

func (s *AppointmentStore) FindByPractitioner(ctx context.Context, practitionerID string) ([]*domain.Appointment, error) {
	return s.list(ctx, `WHERE practitioner_id = $1`, practitionerID)
}

func (s *AppointmentStore) FindByPractitionerAndState(ctx context.Context, practitionerID string, state domain.State) ([]*domain.Appointment, error) {
	return s.list(ctx, `WHERE practitioner_id = $1 AND state = $2`, practitionerID, string(state))
}

func (s *AppointmentStore) FindByPatientAndState(ctx context.Context, patientID string, state domain.State) ([]*domain.Appointment, error) {
	return s.list(ctx, `WHERE patient_id = $1 AND state = $2`, patientID, string(state))
}

func (s *AppointmentStore) list(ctx context.Context, where string, args ...any) ([]*domain.Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	result := []*domain.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *AppointmentStore) Save(ctx context.Context, a *domain.Appointment) error {
	var (
		description, diagnosis, recommendations *string
		recordedAt                              *time.Time
	)
	if r := a.Result; r != nil {
		description, diagnosis, recommendations = &r.Description, &r.Diagnosis, &r.Recommendations
		recordedAt = &r.RecordedAt
	}

	if a.Version == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO appointments (
				id, patient_id, practitioner_id, slot_date, start_time, end_time, slot_reserved, state,
				result_description, result_diagnosis, result_recommendations, result_recorded_at,
				version, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		`, a.ID, a.PatientID, a.PractitionerID,
			dateParam(a.Slot.Date), clockParam(a.Slot.Start), clockParam(a.Slot.End), a.Slot.Reserved, string(a.State),
			description, diagnosis, recommendations, recordedAt,
			a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return appointmentWriteError(err)
		}
		a.Version = 1
		return nil
	}

	// the slot snapshot and owners never change after booking
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET state = $3,
		    result_description = $4,
		    result_diagnosis = $5,
		    result_recommendations = $6,
		    result_recorded_at = $7,
		    updated_at = $8,
		    version = version + 1
		WHERE id = $1
		  AND version = $2
	`, a.ID, a.Version, string(a.State), description, diagnosis, recommendations, recordedAt, a.UpdatedAt)
	if err != nil {
		return appointmentWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	a.Version++
	return nil
}

func appointmentWriteError(err error) error {
	switch uniqueConstraint(err) {
	case "appointments_active_slot_idx":
		return domain.ErrSlotReserved
	case "appointments_pkey":
		return domain.ErrVersionConflict
	}
	return fmt.Errorf("write appointment: %w", err)
}
