package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type PatientStore struct {
	pool *pgxpool.Pool
}

var _ domain.PatientStore = (*PatientStore)(nil)

func NewPatientStore(pool *pgxpool.Pool) *PatientStore {
	return &PatientStore{pool: pool}
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var p domain.Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

const patientColumns = `id::text, name, version, created_at, updated_at`

func (s *PatientStore) Get(ctx context.Context, id string) (*domain.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PatientStore) FindByName(ctx context.Context, name string) (*domain.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE name = $1
	`, name)
	return scanPatient(row)
}

func (s *PatientStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("patient exists by name: %w", err)
	}
	return exists, nil
}

func (s *PatientStore) FindByNameContains(ctx context.Context, substr string) ([]*domain.Patient, error) {
	return s.list(ctx, `WHERE strpos(lower(name), lower($1)) > 0`, substr)
}

func (s *PatientStore) List(ctx context.Context) ([]*domain.Patient, error) {
	return s.list(ctx, "")
}

func (s *PatientStore) list(ctx context.Context, where string, args ...any) ([]*domain.Patient, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+patientColumns+` FROM patients `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	result := []*domain.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PatientStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (s *PatientStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPatientNotFound
	}
	return nil
}

func (s *PatientStore) Save(ctx context.Context, p *domain.Patient) error {
	if p.Version == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO patients (id, name, version, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $4)
		`, p.ID, p.Name, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return patientWriteError(err)
		}
		p.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE patients
		SET name = $3,
		    updated_at = $4,
		    version = version + 1
		WHERE id = $1
		  AND version = $2
	`, p.ID, p.Version, p.Name, p.UpdatedAt)
	if err != nil {
		return patientWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	p.Version++
	return nil
}

func patientWriteError(err error) error {
	switch uniqueConstraint(err) {
	case "patients_name_key":
		return domain.ErrDuplicateName
	case "patients_pkey":
		return domain.ErrVersionConflict
	}
	return fmt.Errorf("write patient: %w", err)
}
