package order

import "time"

// OrderState implements the state pattern for order lifecycle transitions.
// Transitions only move forward: pending is the sole non-terminal status, and
// re-applying the outcome a terminal order already holds is a no-op.
type OrderState interface {
	Status() Status
	OnFulfilled(o *Order) (OrderState, error)
	OnFulfillmentFailed(o *Order, reason string) (OrderState, error)
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnFulfilled(o *Order) (OrderState, error) {
	now := time.Now().UTC()
	o.CompletedAt = &now
	o.FailureReason = ""
	return completedState{}, nil
}

func (pendingState) OnFulfillmentFailed(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnFulfilled(*Order) (OrderState, error) {
	return completedState{}, nil
}

func (completedState) OnFulfillmentFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnFulfilled(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnFulfillmentFailed(o *Order, reason string) (OrderState, error) {
	_ = reason
	return failedState{}, nil
}
