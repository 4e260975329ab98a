package practitioner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

// AddSlot offers a new unreserved slot. It must start in the future and may
// not overlap any slot the practitioner already has on that date.
func (r *Registry) AddSlot(ctx context.Context, id string, date domain.Date, start, end domain.Clock) (domain.Slot, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return domain.Slot{}, err
	}
	slot, err := domain.NewSlot(date, start, end)
	if err != nil {
		return domain.Slot{}, err
	}
	if !slot.StartsAt(r.loc).After(r.now()) {
		return domain.Slot{}, domain.ErrSlotInPast
	}

	err = r.mutateSlots(ctx, id, func(p *domain.Practitioner) error {
		return p.Slots.Add(slot)
	})
	if err != nil {
		return domain.Slot{}, err
	}

	r.log.Info("slot added", zap.String("practitioner_id", id), zap.Stringer("date", date),
		zap.Stringer("start", start), zap.Stringer("end", end))
	return slot, nil
}

// SlotRejection names a slot a bulk add skipped and why.
type SlotRejection struct {
	Slot   domain.Slot `json:"slot"`
	Reason string      `json:"reason"`
}

type BulkResult struct {
	Added    domain.Slots    `json:"added"`
	Rejected []SlotRejection `json:"rejected"`
}

var errNothingAdded = errors.New("nothing added")

// AddSlots offers each candidate on its own terms: a candidate that fails
// validation, lies in the past or overlaps an existing or earlier candidate
// is skipped and reported, the rest are added in one write.
func (r *Registry) AddSlots(ctx context.Context, id string, candidates []domain.Slot) (BulkResult, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return BulkResult{}, err
	}
	if len(candidates) == 0 {
		return BulkResult{}, domain.Invalidf("at least one slot is required")
	}

	var res BulkResult
	err = r.mutateSlots(ctx, id, func(p *domain.Practitioner) error {
		res = BulkResult{Added: domain.Slots{}, Rejected: []SlotRejection{}}
		now := r.now()
		for _, c := range candidates {
			slot, err := domain.NewSlot(c.Date, c.Start, c.End)
			if err == nil && !slot.StartsAt(r.loc).After(now) {
				err = domain.ErrSlotInPast
			}
			if err == nil {
				err = p.Slots.Add(slot)
			}
			if err != nil {
				res.Rejected = append(res.Rejected, SlotRejection{Slot: c, Reason: err.Error()})
				continue
			}
			res.Added = append(res.Added, slot)
		}
		if len(res.Added) == 0 {
			return errNothingAdded
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingAdded) {
		return BulkResult{}, err
	}

	r.log.Info("slots added", zap.String("practitioner_id", id),
		zap.Int("added", len(res.Added)), zap.Int("rejected", len(res.Rejected)))
	return res, nil
}

// RemoveSlot deletes the slot on date starting at start. Reserved slots stay.
func (r *Registry) RemoveSlot(ctx context.Context, id string, date domain.Date, start domain.Clock) error {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return err
	}
	return r.mutateSlots(ctx, id, func(p *domain.Practitioner) error {
		_, err := p.Slots.Remove(date, start)
		return err
	})
}

// ListAvailableSlots returns unreserved slots that have not started yet.
func (r *Registry) ListAvailableSlots(ctx context.Context, id string) (domain.Slots, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Slots.Available(r.now(), r.loc), nil
}

func (r *Registry) ListSlots(ctx context.Context, id string) (domain.Slots, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Slots.Sorted(), nil
}

func (r *Registry) mutateSlots(ctx context.Context, id string, mutate func(*domain.Practitioner) error) error {
	return r.withLock(ctx, func(ctx context.Context) error {
		p, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(p); err != nil {
			return err
		}
		p.UpdatedAt = r.now()
		if err := r.store.Save(ctx, p); err != nil {
			return fmt.Errorf("save practitioner slots: %w", err)
		}
		return nil
	}, lock.PractitionerKey(id))
}
