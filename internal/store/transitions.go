package store

import (
	"fmt"
	"time"

	"qms/internal/models"
)

var transitionMap = map[models.TokenStatus][]models.TokenStatus{
	models.StatusWaiting: {models.StatusCalled, models.StatusCancelled},
	models.StatusCalled:  {models.StatusServing, models.StatusSkipped},
	models.StatusServing: {models.StatusCompleted},
}

func ValidTransition(from, to models.TokenStatus) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

// TransitionInput carries what a status change needs besides the token.
// Counter is required only when moving to CALLED.
type TransitionInput struct {
	To      models.TokenStatus
	Counter *models.Counter
	At      time.Time
}

// Transition validates and applies a lifecycle step, returning the
// updated token. The input token is not modified.
func Transition(token models.Token, input TransitionInput) (models.Token, error) {
	if !ValidTransition(token.Status, input.To) {
		return models.Token{}, &TransitionError{From: token.Status, To: input.To}
	}

	next := token.Clone()
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch input.To {
	case models.StatusCalled:
		if input.Counter == nil {
			return models.Token{}, fmt.Errorf("%w: counter required to call %s", ErrInvalidAssignment, token.TicketNumber)
		}
		if input.Counter.Status != models.CounterOpen {
			return models.Token{}, fmt.Errorf("%w: counter %s is %s", ErrInvalidAssignment, input.Counter.ID, input.Counter.Status)
		}
		if !input.Counter.Serves(token.ServiceID) {
			return models.Token{}, fmt.Errorf("%w: counter %s does not serve %s", ErrInvalidAssignment, input.Counter.ID, token.ServiceID)
		}
		next.CounterID = input.Counter.ID
		next.CalledAt = stamp(next.CalledAt, at, &next.CreatedAt)
	case models.StatusServing:
		next.ServedAt = stamp(next.ServedAt, at, next.CalledAt)
	case models.StatusCompleted:
		floor := next.ServedAt
		if floor == nil {
			floor = next.CalledAt
		}
		next.CompletedAt = stamp(next.CompletedAt, at, floor)
	}
	next.Status = input.To
	return next, nil
}

// stamp keeps an existing timestamp and never returns one earlier than
// floor.
func stamp(current *time.Time, at time.Time, floor *time.Time) *time.Time {
	if current != nil {
		return current
	}
	if floor != nil && at.Before(*floor) {
		at = *floor
	}
	return &at
}
