package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type PractitionerStore struct {
	pool *pgxpool.Pool
}

var _ domain.PractitionerStore = (*PractitionerStore)(nil)

func NewPractitionerStore(pool *pgxpool.Pool) *PractitionerStore {
	return &PractitionerStore{pool: pool}
}

const selectPractitioners = `
	SELECT p.id::text, p.name, p.specialty, p.version, p.created_at, p.updated_at,
	       s.slot_date, s.start_time, s.end_time, s.reserved
	FROM practitioners p
	LEFT JOIN practitioner_slots s ON s.practitioner_id = p.id
`

const orderPractitioners = `
	ORDER BY p.name, p.id, s.slot_date, s.start_time, s.end_time
`

// queryPractitioners folds the practitioner/slot join back into records,
// one per practitioner, in name order.
func queryPractitioners(ctx context.Context, q querier, where string, args ...any) ([]*domain.Practitioner, error) {
	rows, err := q.Query(ctx, selectPractitioners+where+orderPractitioners, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*domain.Practitioner{}
	var current *domain.Practitioner
	for rows.Next() {
		var (
			p          domain.Practitioner
			date       pgtype.Date
			start, end pgtype.Time
			reserved   pgtype.Bool
		)
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Specialty,
			&p.Version,
			&p.CreatedAt,
			&p.UpdatedAt,
			&date,
			&start,
			&end,
			&reserved,
		)
		if err != nil {
			return nil, err
		}

		if current == nil || current.ID != p.ID {
			p.Slots = domain.Slots{}
			current = &p
			result = append(result, current)
		}
		if date.Valid {
			current.Slots = append(current.Slots, domain.Slot{
				Date:     toDate(date),
				Start:    toClock(start),
				End:      toClock(end),
				Reserved: reserved.Bool,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PractitionerStore) Get(ctx context.Context, id string) (*domain.Practitioner, error) {
	ps, err := queryPractitioners(ctx, s.pool, `WHERE p.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get practitioner: %w", err)
	}
	if len(ps) == 0 {
		return nil, domain.ErrPractitionerNotFound
	}
	return ps[0], nil
}

func (s *PractitionerStore) FindByName(ctx context.Context, name string) (*domain.Practitioner, error) {
	ps, err := queryPractitioners(ctx, s.pool, `WHERE p.name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("find practitioner by name: %w", err)
	}
	if len(ps) == 0 {
		return nil, domain.ErrPractitionerNotFound
	}
	return ps[0], nil
}

func (s *PractitionerStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM practitioners WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("practitioner exists by name: %w", err)
	}
	return exists, nil
}

func (s *PractitionerStore) FindBySpecialty(ctx context.Context, substr string) ([]*domain.Practitioner, error) {
	ps, err := queryPractitioners(ctx, s.pool, `WHERE strpos(lower(p.specialty), lower($1)) > 0`, substr)
	if err != nil {
		return nil, fmt.Errorf("find practitioners by specialty: %w", err)
	}
	return ps, nil
}

func (s *PractitionerStore) List(ctx context.Context) ([]*domain.Practitioner, error) {
	ps, err := queryPractitioners(ctx, s.pool, "")
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return ps, nil
}

func (s *PractitionerStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM practitioners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete practitioner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPractitionerNotFound
	}
	return nil
}

// Save writes the practitioner row under a version check and replaces its
// slot rows in the same transaction.
func (s *PractitionerStore) Save(ctx context.Context, p *domain.Practitioner) error {
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if p.Version == 0 {
			_, err := tx.Exec(ctx, `
				INSERT INTO practitioners (id, name, specialty, version, created_at, updated_at)
				VALUES ($1, $2, $3, 1, $4, $5)
			`, p.ID, p.Name, p.Specialty, p.CreatedAt, p.UpdatedAt)
			if err != nil {
				return practitionerWriteError(err)
			}
		} else {
			tag, err := tx.Exec(ctx, `
				UPDATE practitioners
				SET name = $3,
				    specialty = $4,
				    updated_at = $5,
				    version = version + 1
				WHERE id = $1
				  AND version = $2
			`, p.ID, p.Version, p.Name, p.Specialty, p.UpdatedAt)
			if err != nil {
				return practitionerWriteError(err)
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrVersionConflict
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM practitioner_slots WHERE practitioner_id = $1`, p.ID); err != nil {
			return fmt.Errorf("clear slots: %w", err)
		}
		if len(p.Slots) == 0 {
			return nil
		}

		owner, err := uuidParam(p.ID)
		if err != nil {
			return err
		}
		rows := make([][]any, len(p.Slots))
		for i, sl := range p.Slots {
			rows[i] = []any{owner, dateParam(sl.Date), clockParam(sl.Start), clockParam(sl.End), sl.Reserved}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"practitioner_slots"},
			[]string{"practitioner_id", "slot_date", "start_time", "end_time", "reserved"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Version++
	return nil
}

func practitionerWriteError(err error) error {
	switch uniqueConstraint(err) {
	case "practitioners_name_key":
		return domain.ErrDuplicateName
	case "practitioners_pkey":
		return domain.ErrVersionConflict
	}
	return fmt.Errorf("write practitioner: %w", err)
}
