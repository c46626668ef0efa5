package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quickshop/product-service/internal/domain/messaging"
	"github.com/quickshop/product-service/internal/observability"
)

// Publisher delivers fulfillment requests at-least-once: transient broker
// failures are retried with exponential backoff up to MaxAttempts before the
// error is surfaced to the caller.
type Publisher struct {
	client      *Client
	maxAttempts int
	backoff     time.Duration
	log         observability.Logger
}

func NewPublisher(client *Client, maxAttempts int, backoff time.Duration, logger observability.Logger) *Publisher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Publisher{
		client:      client,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         logger.With(observability.F("component", componentBroker)),
	}
}

func (p *Publisher) Publish(ctx context.Context, msg messaging.FulfillmentRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal fulfillment request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.backoff << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", messaging.ErrPublishFailed, ctx.Err())
			}
		}

		lastErr = p.client.ch.PublishWithContext(
			ctx,
			p.client.cfg.Exchange,
			p.client.cfg.RoutingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.OrderID,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if lastErr == nil {
			p.log.Debug("fulfillment_published",
				observability.F("order_id", msg.OrderID),
				observability.F("attempt", attempt+1),
			)
			return nil
		}

		p.log.Warn("fulfillment_publish_retry",
			observability.F("order_id", msg.OrderID),
			observability.F("attempt", attempt+1),
			observability.F("error", lastErr.Error()),
		)
	}

	return fmt.Errorf("%w: %d attempts: %w", messaging.ErrPublishFailed, p.maxAttempts, lastErr)
}
