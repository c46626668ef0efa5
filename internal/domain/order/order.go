package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrNoProducts             = errors.New("order: at least one product id is required")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Order struct {
	ID            string
	CustomerID    string
	ProductIDs    []string
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

func New(id, customerID string, productIDs []string) (*Order, error) {
	if len(productIDs) == 0 {
		return nil, ErrNoProducts
	}
	for _, pid := range productIDs {
		if pid == "" {
			return nil, ErrNoProducts
		}
	}

	return &Order{
		ID:         id,
		CustomerID: customerID,
		ProductIDs: append([]string(nil), productIDs...),
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Complete transitions the order to completed. Completing an already
// completed order is a no-op so duplicate broker deliveries stay harmless.
func (o *Order) Complete() error {
	next, err := o.currentState().OnFulfilled(o)
	if err != nil {
		return err
	}
	o.Status = next.Status()
	return nil
}

// Fail transitions the order to failed with the given reason. Failing an
// already failed order is a no-op.
func (o *Order) Fail(reason string) error {
	next, err := o.currentState().OnFulfillmentFailed(o, reason)
	if err != nil {
		return err
	}
	o.Status = next.Status()
	return nil
}

// Terminal reports whether the order has reached a final status.
func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.ProductIDs = append([]string(nil), o.ProductIDs...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

func (o *Order) currentState() OrderState {
	switch o.Status {
	case StatusCompleted:
		return completedState{}
	case StatusFailed:
		return failedState{}
	default:
		return pendingState{}
	}
}
