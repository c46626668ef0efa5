package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quickshop/product-service/internal/domain/messaging"
	"github.com/quickshop/product-service/internal/observability"
)

// Consumer pulls fulfillment requests off the queue one at a time and feeds
// them to the subscribed handler. Handler errors nack with requeue so the
// broker redelivers; successful and poison deliveries are acknowledged.
type Consumer struct {
	client  *Client
	handler messaging.Handler
	log     observability.Logger
}

func NewConsumer(client *Client, logger observability.Logger) *Consumer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Consumer{
		client: client,
		log:    logger.With(observability.F("component", componentBroker)),
	}
}

func (c *Consumer) Subscribe(h messaging.Handler) {
	c.handler = h
}

func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("rabbitmq: no handler subscribed")
	}

	ch, err := c.client.Channel()
	if err != nil {
		return err
	}

	// One unacked message at a time keeps per-order processing serialized.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq: set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.client.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq: consume %s: %w", c.client.cfg.Queue, err)
	}

	go func() {
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.dispatch(ctx, d)
			}
		}
	}()

	c.log.Info("consumer_started", observability.F("queue", c.client.cfg.Queue))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var msg messaging.FulfillmentRequest
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// Malformed payloads cannot succeed on redelivery; drop them.
		c.log.Error("fulfillment_message_malformed",
			observability.F("error", err.Error()),
		)
		_ = d.Ack(false)
		return
	}

	if err := c.handler(ctx, msg); err != nil {
		c.log.Warn("fulfillment_redelivery_requested",
			observability.F("order_id", msg.OrderID),
			observability.F("error", err.Error()),
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
