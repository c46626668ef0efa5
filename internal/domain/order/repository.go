package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Transition loads the order and applies mutate inside the repository's
	// per-order critical section, so concurrent status changes for the same
	// order id cannot interleave. The updated order is returned.
	Transition(ctx context.Context, id string, mutate func(*Order) error) (*Order, error)
}
