package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error raised by the scheduling engine unwraps to exactly
// one of these; anything else is an infrastructure failure.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrFailedPrecondition = errors.New("failed precondition")
)

var kinds = []error{ErrInvalidArgument, ErrNotFound, ErrConflict, ErrFailedPrecondition}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrInvalidID   = newError(ErrInvalidArgument, "malformed identifier")
	ErrPastSlot    = newError(ErrInvalidArgument, "cannot book a past slot")
	ErrSlotInPast  = newError(ErrInvalidArgument, "cannot offer a slot in the past")
	ErrEmptyRange  = newError(ErrInvalidArgument, "start time must be before end time")
	ErrSlotTooLong = newError(ErrInvalidArgument, "a slot cannot last more than 12 hours")
	ErrBlankQuery  = newError(ErrInvalidArgument, "search term cannot be blank")

	ErrPractitionerNotFound = newError(ErrNotFound, "practitioner not found")
	ErrPatientNotFound      = newError(ErrNotFound, "patient not found")
	ErrAppointmentNotFound  = newError(ErrNotFound, "appointment not found")
	ErrSlotNotOffered       = newError(ErrNotFound, "slot not offered")
	ErrSlotNotFound         = newError(ErrNotFound, "slot not found")

	ErrSlotReserved    = newError(ErrConflict, "slot already reserved")
	ErrPatientBusy     = newError(ErrConflict, "patient already booked in this window")
	ErrSlotOverlap     = newError(ErrConflict, "slot overlaps an existing slot")
	ErrDuplicateName   = newError(ErrConflict, "name already registered")
	ErrVersionConflict = newError(ErrConflict, "record was modified concurrently")
	ErrBusy            = newError(ErrConflict, "resource is busy, retry shortly")
	ErrRemoveReserved  = newError(ErrConflict, "cannot remove a reserved slot")

	ErrAlreadyCancelled      = newError(ErrFailedPrecondition, "appointment already cancelled")
	ErrAlreadySeen           = newError(ErrFailedPrecondition, "cannot cancel a completed appointment")
	ErrNotPending            = newError(ErrFailedPrecondition, "results can only be recorded for pending appointments")
	ErrNotStarted            = newError(ErrFailedPrecondition, "appointment has not taken place yet")
	ErrNotSeen               = newError(ErrFailedPrecondition, "results can only be updated for seen appointments")
	ErrNoResult              = newError(ErrFailedPrecondition, "appointment has no medical result")
	ErrHasPendingAppointment = newError(ErrFailedPrecondition, "has pending appointments")
)

// Invalidf builds an INVALID_ARGUMENT error with a formatted reason.
func Invalidf(format string, args ...any) error {
	return newError(ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// KindOf returns the error kind err belongs to, or nil for infrastructure errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
