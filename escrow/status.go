package escrow

import (
	"errors"
	"fmt"
)

// Status is the agreement lifecycle state. Once an agreement leaves Pending
// or Active it never returns.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusTerminated Status = "terminated"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidTransition is returned when an operation would move an agreement
// along an edge the lifecycle does not have.
var ErrInvalidTransition = errors.New("escrow: invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:  {StatusActive, StatusCancelled, StatusDisputed},
	StatusActive:   {StatusCompleted, StatusDisputed, StatusTerminated},
	StatusDisputed: {StatusCompleted, StatusTerminated},
}

// CanTransition reports whether the lifecycle has an edge from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTerminated, StatusCancelled:
		return true
	}
	return false
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusDisputed, StatusTerminated, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus validates a stored or user-supplied status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.valid() {
		return "", fmt.Errorf("escrow: unknown status %q", raw)
	}
	return s, nil
}

// TransitionTo validates the edge and applies it. On a rejected edge the
// status is left untouched.
func (a *RentalAgreement) TransitionTo(next Status) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	return nil
}
