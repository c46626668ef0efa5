package messaging

import (
	"context"
	"errors"
)

// ErrPublishFailed marks a publish that exhausted its retry budget. The order
// stays pending and can be re-driven later; the failure is never swallowed.
var ErrPublishFailed = errors.New("messaging: publish failed")

// FulfillmentRequest is the payload handed to the broker for each new order.
type FulfillmentRequest struct {
	OrderID    string   `json:"orderId"`
	ProductIDs []string `json:"productIds"`
}

// Handler processes one delivered fulfillment request. A non-nil error
// signals a transient failure and requests redelivery; nil acknowledges.
type Handler func(ctx context.Context, msg FulfillmentRequest) error

// Publisher enqueues fulfillment requests onto the broker.
type Publisher interface {
	Publish(ctx context.Context, msg FulfillmentRequest) error
}

// Subscriber registers the handler that consumes fulfillment requests.
type Subscriber interface {
	Subscribe(h Handler)
}
